// Package pulse fans call events out to Pulse streams for live consumers:
// operator dashboards and the transfer desk. The Sink is a hook subscriber
// that writes one JSON envelope per event to the stream "call/<ID>"; the
// Subscriber reads envelopes back on the consumer side.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cabline.dev/agent/booking/events"
	"cabline.dev/agent/booking/hooks"
	clientspulse "cabline.dev/agent/clients/pulse"
)

type (
	// Options configures the Sink.
	Options struct {
		// Client is the Pulse client used to publish events. Required.
		Client clientspulse.Client
		// StreamID derives the target Pulse stream from an event. Defaults to
		// `call/<CallID>`.
		StreamID func(hooks.Event) (string, error)
		// OnPublished, when set, is invoked after each successful publish with
		// the stream and entry IDs. Errors returned from the callback propagate
		// to the bus publisher.
		OnPublished func(ctx context.Context, ev PublishedEvent) error
	}

	// PublishedEvent describes a single event published to a Pulse stream.
	PublishedEvent struct {
		// Event is the hook event that was published.
		Event hooks.Event
		// StreamID is the stream the envelope was written to.
		StreamID string
		// EntryID is the Redis entry ID assigned to the envelope.
		EntryID string
	}

	// Sink publishes call events to Pulse streams. Register it on the hook bus
	// alongside the call log recorder; each event becomes one envelope on the
	// call's stream. Thread-safe for concurrent HandleEvent calls.
	Sink struct {
		client      clientspulse.Client
		streamID    func(hooks.Event) (string, error)
		onPublished func(context.Context, PublishedEvent) error
	}

	// envelope wraps call events for transmission over Pulse streams.
	envelope struct {
		// Type identifies the event kind (e.g., "turn_processed", "call_ended").
		Type string `json:"type"`
		// CallID links the event to a specific call.
		CallID string `json:"call_id"`
		// Timestamp records when the event was created (UTC).
		Timestamp time.Time `json:"ts"`
		// Payload contains the event-specific data, if any.
		Payload any `json:"payload,omitempty"`
	}

	// Live view payload shapes. These are leaner than the call log payloads:
	// dashboards track where a call is and what the agent said, not the full
	// audit detail.
	callStartedView struct {
		CallerPhone string `json:"caller_phone,omitempty"`
		CallerName  string `json:"caller_name,omitempty"`
	}

	turnView struct {
		TurnID string `json:"turn_id,omitempty"`
		Stage  string `json:"stage"`
		Say    string `json:"say,omitempty"`
	}

	backendView struct {
		Backend    string `json:"backend"`
		OK         *bool  `json:"ok,omitempty"`
		Superseded bool   `json:"superseded,omitempty"`
	}

	bookingView struct {
		BookingID   string `json:"booking_id"`
		Pickup      string `json:"pickup"`
		Destination string `json:"destination"`
		PickupTime  string `json:"pickup_time"`
	}

	callEndedView struct {
		Outcome   string `json:"outcome"`
		BookingID string `json:"booking_id,omitempty"`
	}
)

// NewSink constructs a Pulse-backed sink. The Client field in opts is
// required; StreamID and OnPublished are optional.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	streamID := opts.StreamID
	if streamID == nil {
		streamID = defaultStreamID
	}
	return &Sink{
		client:      opts.Client,
		streamID:    streamID,
		onPublished: opts.OnPublished,
	}, nil
}

var _ hooks.Subscriber = (*Sink)(nil)

// HandleEvent implements hooks.Subscriber. It derives the stream name, wraps
// the event in a JSON envelope, and appends it to the stream.
func (s *Sink) HandleEvent(ctx context.Context, evt hooks.Event) error {
	id, err := s.streamID(evt)
	if err != nil {
		return err
	}
	str, err := s.client.Stream(id)
	if err != nil {
		return err
	}
	env := envelope{
		Type:      string(evt.Type()),
		CallID:    evt.CallID(),
		Timestamp: time.UnixMilli(evt.Timestamp()).UTC(),
		Payload:   liveView(evt),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", evt.Type(), err)
	}
	entryID, err := str.Add(ctx, env.Type, data)
	if err != nil {
		return err
	}
	if s.onPublished != nil {
		return s.onPublished(ctx, PublishedEvent{Event: evt, StreamID: id, EntryID: entryID})
	}
	return nil
}

// Close releases resources owned by the sink. This delegates to the underlying
// Pulse client, which may or may not close the Redis connection depending on
// the client implementation.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// defaultStreamID derives the Pulse stream name from the event's call ID.
// Returns an error if the call ID is empty.
func defaultStreamID(evt hooks.Event) (string, error) {
	if evt.CallID() == "" {
		return "", errors.New("hook event missing call id")
	}
	return fmt.Sprintf("call/%s", evt.CallID()), nil
}

// liveView renders the dashboard payload for an event.
func liveView(evt hooks.Event) any {
	switch e := evt.(type) {
	case *hooks.CallStartedEvent:
		return callStartedView{CallerPhone: e.CallerPhone, CallerName: e.CallerName}
	case *hooks.TurnProcessedEvent:
		return turnView{TurnID: e.TurnID, Stage: e.StageAfter, Say: spokenLine(e.Action)}
	case *hooks.BackendRequestedEvent:
		return backendView{Backend: string(e.Backend)}
	case *hooks.BackendResolvedEvent:
		ok := e.OK
		return backendView{Backend: string(e.Backend), OK: &ok, Superseded: e.Superseded}
	case *hooks.BookingCreatedEvent:
		return bookingDetailsView(e.BookingID, e.Details)
	case *hooks.BookingAmendedEvent:
		return bookingDetailsView(e.BookingID, e.Details)
	case *hooks.CallEndedEvent:
		return callEndedView{Outcome: e.Outcome, BookingID: e.BookingID}
	default:
		return nil
	}
}

func bookingDetailsView(bookingID string, d events.BookingDetails) bookingView {
	return bookingView{
		BookingID:   bookingID,
		Pickup:      d.PickupAddress,
		Destination: d.DropoffAddress,
		PickupTime:  d.PickupTimeText,
	}
}

// spokenLine extracts the caller-facing text from an action, when it has any.
func spokenLine(act events.Action) string {
	switch a := act.(type) {
	case events.Ask:
		return a.Text
	case events.Hangup:
		return a.Text
	case events.TransferToHuman:
		return a.Reason
	default:
		return ""
	}
}
