package inmem

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabline.dev/agent/booking/hooks"
	"cabline.dev/agent/features/calllog"
)

func appendEntries(t *testing.T, s *Store, callID string, n int) {
	t.Helper()

	for i := 1; i <= n; i++ {
		err := s.Append(context.Background(), &calllog.Entry{
			CallID:    callID,
			Type:      hooks.TurnProcessed,
			Payload:   []byte(fmt.Sprintf(`{"n":%d}`, i)),
			Timestamp: time.Unix(int64(i), 0).UTC(),
		})
		require.NoError(t, err)
	}
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	s := New()
	appendEntries(t, s, "call-1", 3)

	page, err := s.List(context.Background(), "call-1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, "1", page.Entries[0].ID)
	assert.Equal(t, "3", page.Entries[2].ID)
	assert.Empty(t, page.NextCursor)
}

func TestListPagesForward(t *testing.T) {
	t.Parallel()

	s := New()
	appendEntries(t, s, "call-1", 5)

	first, err := s.List(context.Background(), "call-1", "", 2)
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	require.Equal(t, "2", first.NextCursor)

	second, err := s.List(context.Background(), "call-1", first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	require.Equal(t, "4", second.NextCursor)

	last, err := s.List(context.Background(), "call-1", second.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, last.Entries, 1)
	assert.Empty(t, last.NextCursor)
}

func TestListIsolatesCalls(t *testing.T) {
	t.Parallel()

	s := New()
	appendEntries(t, s, "call-1", 2)
	appendEntries(t, s, "call-2", 3)

	page, err := s.List(context.Background(), "call-2", "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 3)
}

func TestAppendCopiesEntry(t *testing.T) {
	t.Parallel()

	s := New()
	e := &calllog.Entry{CallID: "call-1", Type: hooks.CallStarted, Timestamp: time.Now()}
	require.NoError(t, s.Append(context.Background(), e))

	// Mutating the caller's entry after Append must not affect the store.
	e.Type = hooks.CallEnded

	page, err := s.List(context.Background(), "call-1", "", 1)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, hooks.CallStarted, page.Entries[0].Type)
}

func TestListValidation(t *testing.T) {
	t.Parallel()

	s := New()

	_, err := s.List(context.Background(), "", "", 1)
	require.Error(t, err)

	_, err = s.List(context.Background(), "call-1", "", 0)
	require.Error(t, err)

	_, err = s.List(context.Background(), "call-1", "not-a-number", 1)
	require.Error(t, err)
}

func TestListUnknownCallIsEmpty(t *testing.T) {
	t.Parallel()

	s := New()
	page, err := s.List(context.Background(), "missing", "", 5)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Empty(t, page.NextCursor)
}
