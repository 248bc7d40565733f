package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trehub/airlock/internal/common"
)

var (
	alice = Actor{Username: "alice", WorkspaceGrants: []string{"wonderland"}}
	bob   = Actor{Username: "bob", OutputChecker: true}
	carol = Actor{Username: "carol", OutputChecker: true, WorkspaceGrants: []string{"wonderland"}}
	eve   = Actor{Username: "eve"}
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		actor     Actor
		action    Action
		workspace string
		author    string
		wantDeny  bool
	}{
		{"member creates in own workspace", alice, ActionCreateRequest, "wonderland", "", false},
		{"member cannot create elsewhere", alice, ActionCreateRequest, "lab", "", true},
		{"checker flag does not grant create", bob, ActionCreateRequest, "wonderland", "", true},
		{"checker with grant may create", carol, ActionCreateRequest, "wonderland", "", false},

		{"author adds file", alice, ActionAddFile, "wonderland", "alice", false},
		{"non-author cannot add file", bob, ActionAddFile, "wonderland", "alice", true},

		{"author submits", alice, ActionSubmit, "wonderland", "alice", false},
		{"non-author cannot submit", carol, ActionSubmit, "wonderland", "alice", true},
		{"author withdraws", alice, ActionWithdraw, "wonderland", "alice", false},

		{"checker reviews", bob, ActionReviewFile, "wonderland", "alice", false},
		{"non-checker cannot review", eve, ActionReviewFile, "wonderland", "alice", true},
		{"author never reviews own request", carol, ActionReviewFile, "wonderland", "carol", true},

		{"checker rejects", bob, ActionReject, "wonderland", "alice", false},
		{"checker releases", bob, ActionRelease, "wonderland", "alice", false},
		{"author cannot release own request", carol, ActionRelease, "wonderland", "carol", true},

		{"author views", alice, ActionView, "wonderland", "alice", false},
		{"checker views any workspace", bob, ActionView, "lab", "alice", false},
		{"outsider cannot view", eve, ActionView, "wonderland", "alice", true},

		{"author comments publicly", alice, ActionComment, "wonderland", "alice", false},
		{"author cannot comment internally", Actor{Username: "alice", OutputChecker: true}, ActionCommentInternal, "wonderland", "alice", true},
		{"checker comments internally", bob, ActionCommentInternal, "wonderland", "alice", false},
		{"non-checker cannot comment internally", alice, ActionCommentInternal, "wonderland", "alice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.actor, tt.action, tt.workspace, tt.author)
			if tt.wantDeny {
				require.Error(t, err)
				require.True(t, errors.Is(err, common.ErrPermissionDenied))
				var pd *common.PermissionDeniedError
				require.True(t, errors.As(err, &pd))
				require.NotEmpty(t, pd.Capability, "denial must identify the missing capability")
			} else {
				require.NoError(t, err)
			}
		})
	}
}
