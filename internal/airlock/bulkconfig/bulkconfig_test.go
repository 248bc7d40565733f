package bulkconfig

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trehub/airlock/internal/common"
)

const validDoc = `
requests:
  - workspace: w1
    author: alice
    groups:
      - name: outputs
        files:
          - path: results/out.csv
            kind: output
          - path: notes.md
            kind: supporting
`

func TestParse_ValidDocument(t *testing.T) {
	doc, err := Parse([]byte(validDoc))
	require.NoError(t, err)
	require.Len(t, doc.Requests, 1)
	require.Equal(t, "w1", doc.Requests[0].Workspace)
	require.Len(t, doc.Requests[0].Groups[0].Files, 2)
}

func TestParse_CollectsAllProblems(t *testing.T) {
	doc := `
requests:
  - author: alice
    groups:
      - name: outputs
        files:
          - path: out.csv
            kind: output
  - workspace: w2
    groups:
      - files:
          - kind: binary
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	require.True(t, errors.Is(err, common.ErrConfigValidation))

	var cv *common.ConfigValidationError
	require.True(t, errors.As(err, &cv))

	seen := make(map[string]bool)
	for _, p := range cv.Problems {
		seen[fmt.Sprintf("%d/%s", p.Entry, p.Field)] = true
	}
	for _, want := range []string{
		"0/workspace",
		"1/author",
		"1/groups[0].name",
		"1/groups[0].files[0].path",
		"1/groups[0].files[0].kind",
	} {
		require.True(t, seen[want], "missing problem %s in %v", want, cv.Problems)
	}
	require.GreaterOrEqual(t, len(cv.Problems), 5, "every problem must be reported, not just the first")
}

func TestParse_DuplicatePathsAcrossGroups(t *testing.T) {
	doc := `
requests:
  - workspace: w1
    author: alice
    groups:
      - name: a
        files:
          - path: out.csv
            kind: output
      - name: b
        files:
          - path: out.csv
            kind: output
`
	_, err := Parse([]byte(doc))
	var cv *common.ConfigValidationError
	require.True(t, errors.As(err, &cv))
	require.Len(t, cv.Problems, 1)
	require.Contains(t, cv.Problems[0].Message, "duplicate path")
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	doc := `
requests:
  - workspace: w1
    author: alice
    priority: high
`
	_, err := Parse([]byte(doc))
	require.True(t, errors.Is(err, common.ErrConfigValidation))
}

func TestParse_EmptyDocument(t *testing.T) {
	_, err := Parse(nil)
	require.True(t, errors.Is(err, common.ErrConfigValidation))
}

func TestValidate_RequiresOutputFile(t *testing.T) {
	doc := &Document{Requests: []RequestEntry{{
		Workspace: "w1",
		Author:    "alice",
		Groups: []GroupEntry{{
			Name:  "g",
			Files: []FileEntry{{Path: "notes.md", Kind: "supporting"}},
		}},
	}}}

	err := Validate(doc)
	var cv *common.ConfigValidationError
	require.True(t, errors.As(err, &cv))
	require.Equal(t, "groups", cv.Problems[0].Field)
}
