package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trehub/airlock/internal/airlock/audit"
	"github.com/trehub/airlock/internal/common"
)

func TestAuditQuery_CheckerSeesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submitted(t)

	svc := NewAuditService(nil, f.rm, nil)

	entries, err := svc.Query(ctx, bob, audit.Filter{Workspace: "W"})
	require.NoError(t, err)
	require.Len(t, entries, 3) // create, file_add, submit
	require.Equal(t, audit.EventRequestSubmit, entries[0].Kind, "most recent first")
	require.Equal(t, req.ID, entries[0].RequestID)
}

func TestAuditQuery_NonCheckerLimitedToOwnHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.drafted(t)

	svc := NewAuditService(nil, f.rm, nil)

	entries, err := svc.Query(ctx, alice, audit.Filter{User: "alice"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	_, err = svc.Query(ctx, alice, audit.Filter{User: "bob"})
	require.True(t, errors.Is(err, common.ErrPermissionDenied))

	// An empty user filter scopes to the caller rather than being refused.
	entries, err = svc.Query(ctx, alice, audit.Filter{Workspace: "W"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, "alice", e.User)
	}
}

func TestAuditHide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.drafted(t)

	svc := NewAuditService(nil, f.rm, nil)

	entries, err := svc.Query(ctx, bob, audit.Filter{Workspace: "W"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.True(t, errors.Is(svc.Hide(ctx, alice, entries[0].ID), common.ErrPermissionDenied))
	require.NoError(t, svc.Hide(ctx, bob, entries[0].ID))

	// Hidden entries drop out of default queries but replay on demand.
	visible, err := svc.Query(ctx, bob, audit.Filter{Workspace: "W"})
	require.NoError(t, err)
	require.Len(t, visible, 1)

	all, err := svc.Query(ctx, bob, audit.Filter{Workspace: "W", IncludeHidden: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.True(t, all[0].Hidden)
}
