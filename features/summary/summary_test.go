package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabline.dev/agent/booking/events"
	"cabline.dev/agent/booking/hooks"
	"cabline.dev/agent/features/calllog"
	"cabline.dev/agent/features/calllog/inmem"
	"cabline.dev/agent/features/model"
)

type fakeModel struct {
	req  model.Request
	resp *model.Response
	err  error
}

func (f *fakeModel) Complete(_ context.Context, req model.Request) (*model.Response, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// pagedStore serves pre-canned pages and records the cursors it was asked
// for.
type pagedStore struct {
	pages   []calllog.Page
	listErr error
	cursors []string
}

func (s *pagedStore) Append(context.Context, *calllog.Entry) error { return nil }

func (s *pagedStore) List(_ context.Context, _ string, cursor string, _ int) (calllog.Page, error) {
	if s.listErr != nil {
		return calllog.Page{}, s.listErr
	}
	s.cursors = append(s.cursors, cursor)
	i := len(s.cursors) - 1
	if i >= len(s.pages) {
		return calllog.Page{}, nil
	}
	return s.pages[i], nil
}

// seedCall records a complete booked call through the real recorder so the
// transcript decodes the exact payload shapes the store holds in production.
func seedCall(t *testing.T, store calllog.Store, callID string) {
	t.Helper()
	rec, err := calllog.NewRecorder(store)
	require.NoError(t, err)

	ctx := context.Background()
	evts := []hooks.Event{
		hooks.NewCallStartedEvent(callID, "+447700900123", "Priya Shah"),
		hooks.NewTurnProcessedEvent(callID, "turn-1", "start", "collect_pickup",
			events.ToolSync{TurnID: "turn-1"},
			events.Ask{Text: "Where shall we pick you up?"}),
		hooks.NewBackendRequestedEvent(callID, events.BackendGeocodePickup, 1),
		hooks.NewBackendResolvedEvent(callID, events.BackendGeocodePickup, 1, true, false, 120*time.Millisecond),
		hooks.NewBookingCreatedEvent(callID, "BK-001", events.BookingDetails{
			PickupAddress:  "12 High Street, Camden",
			DropoffAddress: "Heathrow Terminal 5",
			Passengers:     2,
			PickupTimeText: "ASAP",
			ASAP:           true,
		}),
		hooks.NewCallEndedEvent(callID, hooks.OutcomeCompleted, "booked", "BK-001"),
	}
	for _, evt := range evts {
		require.NoError(t, rec.HandleEvent(ctx, evt))
	}
}

func TestSummarizeBookedCall(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	seedCall(t, store, "call-1")

	client := &fakeModel{resp: &model.Response{
		Text:       "  Booked BK-001 from 12 High Street to Heathrow Terminal 5, 2 passengers, ASAP.\n",
		StopReason: "end_turn",
		Usage:      model.TokenUsage{InputTokens: 180, OutputTokens: 40, TotalTokens: 220},
	}}
	s, err := New(Options{Store: store, Client: client})
	require.NoError(t, err)

	sum, err := s.Summarize(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "call-1", sum.CallID)
	assert.Equal(t, "Booked BK-001 from 12 High Street to Heathrow Terminal 5, 2 passengers, ASAP.", sum.Text)
	assert.Equal(t, 220, sum.Usage.TotalTokens)

	require.Len(t, client.req.Messages, 2)
	assert.Equal(t, model.RoleSystem, client.req.Messages[0].Role)
	assert.Contains(t, client.req.Messages[0].Content, "taxi dispatch office")
	assert.Equal(t, model.RoleUser, client.req.Messages[1].Role)
	assert.Equal(t, defaultMaxTokens, client.req.MaxTokens)

	transcript := client.req.Messages[1].Content
	assert.Contains(t, transcript, "call started from +447700900123 (Priya Shah)")
	assert.Contains(t, transcript, `turn collect_pickup: ask "Where shall we pick you up?"`)
	assert.Contains(t, transcript, "lookup geocode_pickup ok")
	assert.Contains(t, transcript, "booking BK-001 created: pickup 12 High Street, Camden, destination Heathrow Terminal 5, 2 passengers, ASAP")
	assert.Contains(t, transcript, "call ended: completed (booking BK-001)")
	// Backend requests carry nothing a summary needs.
	assert.NotContains(t, transcript, "backend_requested")
}

func TestSummarizeOptionsOverrides(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	seedCall(t, store, "call-2")

	client := &fakeModel{resp: &model.Response{Text: "ok"}}
	s, err := New(Options{
		Store:        store,
		Client:       client,
		Model:        "claude-haiku-4-5",
		MaxTokens:    64,
		SystemPrompt: "One line only.",
	})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "call-2")
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", client.req.Model)
	assert.Equal(t, 64, client.req.MaxTokens)
	assert.Equal(t, "One line only.", client.req.Messages[0].Content)
}

func TestSummarizePagesThroughLog(t *testing.T) {
	t.Parallel()

	entry := func(id string, typ hooks.EventType, payload string) *calllog.Entry {
		return &calllog.Entry{
			ID:        id,
			CallID:    "call-3",
			Type:      typ,
			Payload:   []byte(payload),
			Timestamp: time.Unix(0, 0).UTC(),
		}
	}
	store := &pagedStore{pages: []calllog.Page{
		{
			Entries:    []*calllog.Entry{entry("1", hooks.CallStarted, `{}`)},
			NextCursor: "1",
		},
		{
			Entries: []*calllog.Entry{entry("2", hooks.CallEnded, `{"outcome":"abandoned"}`)},
		},
	}}

	client := &fakeModel{resp: &model.Response{Text: "Caller hung up before booking."}}
	s, err := New(Options{Store: store, Client: client, PageSize: 1})
	require.NoError(t, err)

	sum, err := s.Summarize(context.Background(), "call-3")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "1"}, store.cursors)

	transcript := client.req.Messages[1].Content
	assert.Contains(t, transcript, "call started")
	assert.Contains(t, transcript, "call ended: abandoned")
	assert.Equal(t, "Caller hung up before booking.", sum.Text)
}

func TestSummarizeEmptyLog(t *testing.T) {
	t.Parallel()

	s, err := New(Options{Store: inmem.New(), Client: &fakeModel{}})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "call-404")
	require.Error(t, err)
	assert.ErrorContains(t, err, "no log entries")
}

func TestSummarizeRequiresCallID(t *testing.T) {
	t.Parallel()

	s, err := New(Options{Store: inmem.New(), Client: &fakeModel{}})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "")
	require.Error(t, err)
	assert.ErrorContains(t, err, "call id is required")
}

func TestSummarizeListError(t *testing.T) {
	t.Parallel()

	store := &pagedStore{listErr: errors.New("socket closed")}
	s, err := New(Options{Store: store, Client: &fakeModel{}})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "call-7")
	require.Error(t, err)
	assert.ErrorContains(t, err, "list call call-7 entries")
	assert.ErrorContains(t, err, "socket closed")
}

func TestSummarizeModelError(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	seedCall(t, store, "call-4")

	s, err := New(Options{Store: store, Client: &fakeModel{err: errors.New("model down")}})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "call-4")
	require.Error(t, err)
	assert.ErrorContains(t, err, "summarize call call-4")
	assert.ErrorContains(t, err, "model down")
}

func TestSummarizeBlankModelText(t *testing.T) {
	t.Parallel()

	store := inmem.New()
	seedCall(t, store, "call-5")

	s, err := New(Options{Store: store, Client: &fakeModel{resp: &model.Response{Text: "  \n"}}})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "call-5")
	require.Error(t, err)
	assert.ErrorContains(t, err, "no text")
}

func TestSummarizeBadPayload(t *testing.T) {
	t.Parallel()

	store := &pagedStore{pages: []calllog.Page{{
		Entries: []*calllog.Entry{{
			ID:        "1",
			CallID:    "call-6",
			Type:      hooks.BookingCreated,
			Payload:   []byte(`{not json`),
			Timestamp: time.Unix(0, 0).UTC(),
		}},
	}}}

	s, err := New(Options{Store: store, Client: &fakeModel{}})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "call-6")
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode booking_created payload")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Client: &fakeModel{}})
	require.Error(t, err)

	_, err = New(Options{Store: inmem.New()})
	require.Error(t, err)
}
