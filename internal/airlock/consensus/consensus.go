// Package consensus reduces the immutable sequence of per-reviewer verdicts
// into a per-file and then per-request outcome for the current review turn.
//
// The rule is asymmetric on purpose: a single changes-requested verdict
// blocks a file, while approval needs MinApprovals distinct non-author
// reviewers. Reviews from earlier turns are retained for history but never
// count toward the current turn.
package consensus

import "github.com/trehub/airlock/internal/airlock/models"

// Policy holds the tunable part of the consensus rule.
type Policy struct {
	// MinApprovals is the number of distinct non-author reviewers that must
	// approve a file before it is resolved-approved for the turn.
	MinApprovals int
}

// DefaultPolicy requires two independent approvals per file.
func DefaultPolicy() Policy {
	return Policy{MinApprovals: 2}
}

// FileVerdict is the reduced per-turn outcome for one output file.
type FileVerdict int

const (
	// FilePending: fewer than MinApprovals approvals and no dissent yet.
	FilePending FileVerdict = iota
	// FileApproved: resolved-approved for the turn.
	FileApproved
	// FileChangesRequested: at least one reviewer requested changes.
	FileChangesRequested
)

// RequestVerdict is the AND over all output files of a request.
type RequestVerdict int

const (
	// RequestPending: some output file has no terminal per-turn verdict yet.
	RequestPending RequestVerdict = iota
	// RequestApproved: every output file is resolved-approved.
	RequestApproved
	// RequestChangesRequested: every file is terminal and at least one
	// requires changes.
	RequestChangesRequested
)

// FileOutcome reduces one file's review history to its verdict for turn.
// Verdicts by the request author are ignored defensively; the permission
// gate should have refused them already.
func (p Policy) FileOutcome(f *models.RequestFile, author string, turn int) FileVerdict {
	approvers := make(map[string]struct{})
	for _, r := range f.Reviews {
		if r.Turn != turn || r.Reviewer == author {
			continue
		}
		switch r.Verdict {
		case models.VerdictChangesRequested:
			return FileChangesRequested
		case models.VerdictApproved:
			approvers[r.Reviewer] = struct{}{}
		}
	}
	if len(approvers) >= p.MinApprovals {
		return FileApproved
	}
	return FilePending
}

// RequestOutcome reduces a whole request for its current turn. The request
// stays pending until every output file has a terminal per-turn verdict;
// supporting files are not reviewed and do not participate.
func (p Policy) RequestOutcome(req *models.ReleaseRequest) RequestVerdict {
	outputs := req.OutputFiles()
	if len(outputs) == 0 {
		return RequestPending
	}

	changes := false
	for _, f := range outputs {
		switch p.FileOutcome(f, req.Author, req.Turn) {
		case FilePending:
			return RequestPending
		case FileChangesRequested:
			changes = true
		}
	}
	if changes {
		return RequestChangesRequested
	}
	return RequestApproved
}
