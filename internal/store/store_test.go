package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceChat/internal/session"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "voicechat.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalAppendLoad(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, "s1",
		session.Turn{Role: session.RoleUser, Content: "hello"},
		session.Turn{Role: session.RoleAssistant, Content: "hi there"},
	))
	require.NoError(t, j.Append(ctx, "s2", session.Turn{Role: session.RoleUser, Content: "other"}))
	require.NoError(t, j.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Content: "again"}))

	turns, err := j.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []session.Turn{
		{Role: session.RoleUser, Content: "hello"},
		{Role: session.RoleAssistant, Content: "hi there"},
		{Role: session.RoleUser, Content: "again"},
	}, turns)

	empty, err := j.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJournalReplaceAndDelete(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Content: "stale"}))
	fresh := []session.Turn{
		{Role: session.RoleUser, Content: "a"},
		{Role: session.RoleAssistant, Content: "b"},
	}
	require.NoError(t, j.Replace(ctx, "s1", fresh))

	turns, err := j.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, fresh, turns)

	require.NoError(t, j.Delete(ctx, "s1"))
	turns, err = j.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
