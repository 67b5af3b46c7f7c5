package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sammcj/agentloop/agent"
	"github.com/sammcj/agentloop/tools"
	"github.com/sammcj/agentloop/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{
		RunID: "run-1", Iteration: 1, Tool: tools.RunBash,
		Arguments: map[string]string{"command": "ls"}, OK: true,
		OutputPreview: "a.txt", Duration: 15 * time.Millisecond,
	}))
	require.NoError(t, s.Record(ctx, Entry{RunID: "run-2", Iteration: 1, Tool: tools.ReadFile, Arguments: map[string]string{}}))
	require.NoError(t, s.Record(ctx, Entry{
		RunID: "run-1", Iteration: 2, Tool: tools.ReadFile,
		Arguments: map[string]string{"path": "x"}, ErrorKind: "not_found",
	}))

	entries, err := s.ListRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].Iteration)
	assert.Equal(t, tools.RunBash, entries[0].Tool)
	assert.Equal(t, map[string]string{"command": "ls"}, entries[0].Arguments)
	assert.True(t, entries[0].OK)
	assert.Equal(t, "a.txt", entries[0].OutputPreview)
	assert.Equal(t, 15*time.Millisecond, entries[0].Duration)
	assert.False(t, entries[0].CreatedAt.IsZero())

	assert.Equal(t, 2, entries[1].Iteration)
	assert.False(t, entries[1].OK)
	assert.Equal(t, "not_found", entries[1].ErrorKind)
}

func TestRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Record(ctx, Entry{RunID: "r", Iteration: i, Tool: tools.RunBash}))
	}

	entries, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int{5, 4, 3}, []int{entries[0].Iteration, entries[1].Iteration, entries[2].Iteration})
}

func TestRecordToolFromAgent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.RecordTool(ctx, agent.ToolRecord{
		RunID:     "abc",
		Iteration: 3,
		Tool:      tools.ReadFile,
		Args:      map[string]string{"path": "gone.txt"},
		Result:    tools.Failure(tools.ReadFile, tools.KindNotFound, "gone.txt"),
		Duration:  time.Millisecond,
		StartedAt: time.Now(),
	})
	require.NoError(t, err)

	entries, err := s.ListRun(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].OK)
	assert.Equal(t, "not_found", entries[0].ErrorKind)
	assert.Equal(t, "Error: File not found: gone.txt", entries[0].OutputPreview)
}

func TestPreviewTruncates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, Entry{RunID: "big", Tool: tools.RunBash, OutputPreview: strings.Repeat("x", 2000)}))

	entries, err := s.ListRun(ctx, "big")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, strings.Repeat("x", previewLimit)+"...", entries[0].OutputPreview)
}

func TestClosedStoreReturnsAuditError(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Record(context.Background(), Entry{RunID: "x"})
	assert.ErrorIs(t, err, types.ErrAudit)
}
