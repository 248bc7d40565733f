// Package bulkconfig validates the configuration documents external tooling
// uses to create release requests in bulk. Validation reports every problem
// it finds and never applies any change.
package bulkconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/trehub/airlock/internal/airlock/models"
	"github.com/trehub/airlock/internal/common"
	"gopkg.in/yaml.v3"
)

// Document is the bulk request-creation configuration.
type Document struct {
	Requests []RequestEntry `yaml:"requests"`
}

// RequestEntry describes one request to create.
type RequestEntry struct {
	Workspace string       `yaml:"workspace"`
	Author    string       `yaml:"author"`
	Groups    []GroupEntry `yaml:"groups"`
}

// GroupEntry describes one file group.
type GroupEntry struct {
	Name  string      `yaml:"name"`
	Files []FileEntry `yaml:"files"`
}

// FileEntry describes one file to add.
type FileEntry struct {
	Path string `yaml:"path"`
	Kind string `yaml:"kind"`
}

// Parse decodes a document strictly: unknown keys are an error, reported
// with the rest of the problems.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := unmarshalStrict(data, &doc); err != nil {
		return nil, &common.ConfigValidationError{Problems: []common.ValidationProblem{
			{Entry: -1, Field: "document", Message: err.Error()},
		}}
	}
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func unmarshalStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document")
		}
		return err
	}
	return nil
}

// Validate checks the structural rules and collects every violation.
func Validate(doc *Document) error {
	var problems []common.ValidationProblem

	docProblem := func(field, msg string) {
		problems = append(problems, common.ValidationProblem{Entry: -1, Field: field, Message: msg})
	}
	entryProblem := func(i int, field, msg string) {
		problems = append(problems, common.ValidationProblem{Entry: i, Field: field, Message: msg})
	}

	if len(doc.Requests) == 0 {
		docProblem("requests", "at least one request entry is required")
	}

	for i, req := range doc.Requests {
		if req.Workspace == "" {
			entryProblem(i, "workspace", "required")
		}
		if req.Author == "" {
			entryProblem(i, "author", "required")
		}
		if len(req.Groups) == 0 {
			entryProblem(i, "groups", "at least one group is required")
		}

		groupNames := make(map[string]struct{})
		paths := make(map[string]struct{})
		hasOutput := false
		for gi, g := range req.Groups {
			field := fmt.Sprintf("groups[%d]", gi)
			if g.Name == "" {
				entryProblem(i, field+".name", "required")
			} else if _, dup := groupNames[g.Name]; dup {
				entryProblem(i, field+".name", fmt.Sprintf("duplicate group name %q", g.Name))
			} else {
				groupNames[g.Name] = struct{}{}
			}

			for fi, f := range g.Files {
				ffield := fmt.Sprintf("%s.files[%d]", field, fi)
				if f.Path == "" {
					entryProblem(i, ffield+".path", "required")
				} else if _, dup := paths[f.Path]; dup {
					// Paths are unique across the whole request, not per group.
					entryProblem(i, ffield+".path", fmt.Sprintf("duplicate path %q", f.Path))
				} else {
					paths[f.Path] = struct{}{}
				}

				kind, err := models.ParseFileKind(f.Kind)
				if err != nil {
					entryProblem(i, ffield+".kind", fmt.Sprintf("must be %q or %q", models.KindOutput, models.KindSupporting))
				} else if kind == models.KindOutput {
					hasOutput = true
				}
			}
		}

		if len(req.Groups) > 0 && !hasOutput {
			entryProblem(i, "groups", "at least one output file is required")
		}
	}

	if len(problems) > 0 {
		return &common.ConfigValidationError{Problems: problems}
	}
	return nil
}
