// Package policy is the permission gate: a pure predicate over the actor's
// identity facts and the requested action. It holds no state; the identity
// provider supplies fresh facts for every operation.
package policy

import "github.com/trehub/airlock/internal/common"

// Actor is the per-call snapshot of a user's capabilities, resolved by the
// external identity provider. The gate never caches it beyond one operation.
type Actor struct {
	Username string

	// WorkspaceGrants lists the workspaces the user may create requests in
	// and add files from. Being an output checker grants none of these.
	WorkspaceGrants []string

	// OutputChecker marks a user allowed to review output files. Checkers
	// may view requests across all workspaces.
	OutputChecker bool
}

// HasWorkspace reports whether the actor holds an explicit grant for the
// workspace.
func (a Actor) HasWorkspace(workspace string) bool {
	for _, w := range a.WorkspaceGrants {
		if w == workspace {
			return true
		}
	}
	return false
}

// Action is a gated operation on a release request.
type Action int

const (
	ActionCreateRequest Action = iota
	ActionAddFile
	ActionSubmit
	ActionWithdraw
	ActionComment
	ActionCommentInternal
	ActionReviewFile
	ActionReject
	ActionRelease
	ActionView
)

func denied(capability string) error {
	return &common.PermissionDeniedError{Capability: capability}
}

// Check decides whether actor may perform action on a request in the given
// workspace authored by author. For ActionCreateRequest author is empty.
// A denial always identifies the missing capability; it is never a generic
// failure.
func Check(actor Actor, action Action, workspace, author string) error {
	switch action {
	case ActionCreateRequest:
		if !actor.HasWorkspace(workspace) {
			return denied("workspace grant for " + workspace)
		}
		return nil

	case ActionAddFile:
		if actor.Username != author {
			return denied("request authorship")
		}
		if !actor.HasWorkspace(workspace) {
			return denied("workspace grant for " + workspace)
		}
		return nil

	case ActionSubmit, ActionWithdraw:
		if actor.Username != author {
			return denied("request authorship")
		}
		return nil

	case ActionComment:
		if actor.Username == author || actor.OutputChecker || actor.HasWorkspace(workspace) {
			return nil
		}
		return denied("workspace membership or output-checker capability")

	case ActionCommentInternal:
		if !actor.OutputChecker {
			return denied("output-checker capability")
		}
		if actor.Username == author {
			return denied("reviewer other than the request author")
		}
		return nil

	case ActionReviewFile, ActionReject, ActionRelease:
		if !actor.OutputChecker {
			return denied("output-checker capability")
		}
		if actor.Username == author {
			return denied("reviewer other than the request author")
		}
		return nil

	case ActionView:
		if actor.Username == author || actor.OutputChecker || actor.HasWorkspace(workspace) {
			return nil
		}
		return denied("workspace membership for " + workspace)
	}

	return denied("known action")
}
