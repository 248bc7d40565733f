package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trehub/airlock/internal/airlock/models"
)

func review(reviewer string, turn int, v models.Verdict) *models.FileReview {
	return &models.FileReview{Reviewer: reviewer, Turn: turn, Verdict: v}
}

func outputFile(path string, reviews ...*models.FileReview) *models.RequestFile {
	return &models.RequestFile{RelPath: path, Kind: models.KindOutput, Reviews: reviews}
}

func TestFileOutcome(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		reviews []*models.FileReview
		want    FileVerdict
	}{
		{"no reviews", nil, FilePending},
		{"one approval is not enough", []*models.FileReview{
			review("bob", 1, models.VerdictApproved),
		}, FilePending},
		{"two distinct approvals pass", []*models.FileReview{
			review("bob", 1, models.VerdictApproved),
			review("carol", 1, models.VerdictApproved),
		}, FileApproved},
		{"same reviewer twice does not pass", []*models.FileReview{
			review("bob", 1, models.VerdictApproved),
			review("bob", 1, models.VerdictApproved),
		}, FilePending},
		{"single dissent blocks despite approvals", []*models.FileReview{
			review("bob", 1, models.VerdictApproved),
			review("carol", 1, models.VerdictApproved),
			review("dave", 1, models.VerdictChangesRequested),
		}, FileChangesRequested},
		{"author verdicts are ignored", []*models.FileReview{
			review("alice", 1, models.VerdictApproved),
			review("bob", 1, models.VerdictApproved),
		}, FilePending},
		{"prior turn reviews do not count", []*models.FileReview{
			review("bob", 1, models.VerdictApproved),
			review("carol", 1, models.VerdictApproved),
		}, FilePending}, // evaluated at turn 2 below
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn := 1
			if tt.name == "prior turn reviews do not count" {
				turn = 2
			}
			f := outputFile("out.csv", tt.reviews...)
			require.Equal(t, tt.want, p.FileOutcome(f, "alice", turn))
		})
	}
}

func TestFileOutcome_ConfigurableThreshold(t *testing.T) {
	p := Policy{MinApprovals: 1}
	f := outputFile("out.csv", review("bob", 1, models.VerdictApproved))
	require.Equal(t, FileApproved, p.FileOutcome(f, "alice", 1))
}

func TestRequestOutcome(t *testing.T) {
	p := DefaultPolicy()

	newReq := func(files ...*models.RequestFile) *models.ReleaseRequest {
		return &models.ReleaseRequest{
			Author: "alice",
			Turn:   1,
			Groups: []*models.FileGroup{{Name: "g", Files: files}},
		}
	}

	t.Run("no output files never approves", func(t *testing.T) {
		req := newReq(&models.RequestFile{RelPath: "notes.txt", Kind: models.KindSupporting})
		require.Equal(t, RequestPending, p.RequestOutcome(req))
	})

	t.Run("pending file keeps request pending even with a dissent elsewhere", func(t *testing.T) {
		req := newReq(
			outputFile("a.csv", review("bob", 1, models.VerdictChangesRequested)),
			outputFile("b.csv"),
		)
		require.Equal(t, RequestPending, p.RequestOutcome(req))
	})

	t.Run("all approved", func(t *testing.T) {
		req := newReq(
			outputFile("a.csv", review("bob", 1, models.VerdictApproved), review("carol", 1, models.VerdictApproved)),
			outputFile("b.csv", review("bob", 1, models.VerdictApproved), review("carol", 1, models.VerdictApproved)),
		)
		require.Equal(t, RequestApproved, p.RequestOutcome(req))
	})

	t.Run("one dissent once all terminal", func(t *testing.T) {
		req := newReq(
			outputFile("a.csv", review("bob", 1, models.VerdictApproved), review("carol", 1, models.VerdictApproved)),
			outputFile("b.csv", review("bob", 1, models.VerdictChangesRequested)),
		)
		require.Equal(t, RequestChangesRequested, p.RequestOutcome(req))
	})

	t.Run("supporting files do not participate", func(t *testing.T) {
		req := newReq(
			outputFile("a.csv", review("bob", 1, models.VerdictApproved), review("carol", 1, models.VerdictApproved)),
			&models.RequestFile{RelPath: "readme.md", Kind: models.KindSupporting},
		)
		require.Equal(t, RequestApproved, p.RequestOutcome(req))
	})
}
