package pcestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pcehq/pce/pkg/pcetypes"
)

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer s.Close()

	st := pcetypes.State{}.Set("core", map[string]any{"foo": "bar"})
	require.NoError(t, s.SaveState(ctx, st))

	loaded, err := s.LoadState(ctx)
	require.NoError(t, err)
	var slice map[string]any
	require.True(t, loaded.Get("core", &slice))
	require.Equal(t, "bar", slice["foo"])
}

func TestRecentActionsOrderedOldestFirst(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer s.Close()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		a := &pcetypes.CompletedAction{
			ActionID:    "a" + string(rune('0'+i)),
			CompletedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.AppendAction(ctx, "decision-1", a))
	}

	recent, err := s.RecentActions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "a0", recent[0].ActionID)
	require.Equal(t, "a2", recent[2].ActionID)
}

func TestApprovalLifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer s.Close()

	a := &pcetypes.PendingApproval{
		ApprovalID: "ap-1",
		Status:     pcetypes.ApprovalPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.PutApproval(ctx, a))

	pending, err := s.PendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	a.Status = pcetypes.ApprovalApproved
	now := time.Now().UTC()
	a.ResolvedAt = &now
	require.NoError(t, s.PutApproval(ctx, a))

	pending, err = s.PendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 0)

	got, err := s.GetApproval(ctx, "ap-1")
	require.NoError(t, err)
	require.Equal(t, pcetypes.ApprovalApproved, got.Status)
}

func TestTranscriptCursorMonotonic(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer s.Close()

	c1, err := s.AppendTranscript(ctx, pcetypes.TranscriptItem{TS: time.Now(), Kind: pcetypes.KindEventIngested, Payload: map[string]any{"a": 1}})
	require.NoError(t, err)
	c2, err := s.AppendTranscript(ctx, pcetypes.TranscriptItem{TS: time.Now(), Kind: pcetypes.KindStateUpdated, Payload: map[string]any{"b": 2}})
	require.NoError(t, err)
	require.Greater(t, c2, c1)

	items, err := s.TranscriptSince(ctx, c1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, pcetypes.KindStateUpdated, items[0].Kind)
}

func TestPluginKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PluginSetJSON(ctx, "rover", "qtable", map[string]float64{"s1:FWD": 0.4}))

	var qtable map[string]float64
	ok, err := s.PluginGetJSON(ctx, "rover", "qtable", &qtable)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0.4, qtable["s1:FWD"])
}
