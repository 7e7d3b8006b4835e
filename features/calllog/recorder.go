package calllog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cabline.dev/agent/booking/events"
	"cabline.dev/agent/booking/hooks"
)

type (
	// Recorder is the hook subscriber that persists call events to a Store.
	// Register it on the call shell's bus:
	//
	//	rec, _ := calllog.NewRecorder(store)
	//	sub, _ := bus.Register(rec)
	//	defer sub.Close()
	//
	// Append failures propagate to the publisher, halting delivery; the log
	// is the canonical call record, so losing entries silently is worse than
	// failing the publish.
	Recorder struct {
		store Store
	}

	callStartedPayload struct {
		CallerPhone string `json:"caller_phone,omitempty"`
		CallerName  string `json:"caller_name,omitempty"`
	}

	turnPayload struct {
		StageBefore string `json:"stage_before"`
		StageAfter  string `json:"stage_after"`
		Input       string `json:"input"`
		Action      string `json:"action"`
		Prompt      string `json:"prompt,omitempty"`
	}

	backendRequestedPayload struct {
		Backend string `json:"backend"`
		Seq     uint64 `json:"seq"`
	}

	backendResolvedPayload struct {
		Backend    string `json:"backend"`
		Seq        uint64 `json:"seq"`
		OK         bool   `json:"ok"`
		Superseded bool   `json:"superseded,omitempty"`
		DurationMS int64  `json:"duration_ms"`
	}

	bookingPayload struct {
		BookingID           string `json:"booking_id"`
		Pickup              string `json:"pickup"`
		Destination         string `json:"destination"`
		Passengers          int    `json:"passengers"`
		PickupTime          string `json:"pickup_time"`
		SpecialInstructions string `json:"special_instructions,omitempty"`
	}

	callEndedPayload struct {
		Outcome   string `json:"outcome"`
		Stage     string `json:"stage"`
		BookingID string `json:"booking_id,omitempty"`
	}
)

// NewRecorder constructs a Recorder writing to store.
func NewRecorder(store Store) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Recorder{store: store}, nil
}

var _ hooks.Subscriber = (*Recorder)(nil)

// HandleEvent implements hooks.Subscriber.
func (r *Recorder) HandleEvent(ctx context.Context, evt hooks.Event) error {
	payload, turnID, err := renderPayload(evt)
	if err != nil {
		return fmt.Errorf("render %s payload: %w", evt.Type(), err)
	}
	entry := &Entry{
		CallID:    evt.CallID(),
		TurnID:    turnID,
		Type:      evt.Type(),
		Payload:   payload,
		Timestamp: time.UnixMilli(evt.Timestamp()).UTC(),
	}
	if err := r.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append %s entry: %w", evt.Type(), err)
	}
	return nil
}

func renderPayload(evt hooks.Event) (json.RawMessage, string, error) {
	var (
		body   any
		turnID string
	)
	switch e := evt.(type) {
	case *hooks.CallStartedEvent:
		body = callStartedPayload{CallerPhone: e.CallerPhone, CallerName: e.CallerName}
	case *hooks.TurnProcessedEvent:
		turnID = e.TurnID
		action, prompt := describeAction(e.Action)
		body = turnPayload{
			StageBefore: e.StageBefore,
			StageAfter:  e.StageAfter,
			Input:       describeInput(e.Input),
			Action:      action,
			Prompt:      prompt,
		}
	case *hooks.BackendRequestedEvent:
		body = backendRequestedPayload{Backend: string(e.Backend), Seq: e.Seq}
	case *hooks.BackendResolvedEvent:
		body = backendResolvedPayload{
			Backend:    string(e.Backend),
			Seq:        e.Seq,
			OK:         e.OK,
			Superseded: e.Superseded,
			DurationMS: e.Duration.Milliseconds(),
		}
	case *hooks.BookingCreatedEvent:
		body = bookingDetailsPayload(e.BookingID, e.Details)
	case *hooks.BookingAmendedEvent:
		body = bookingDetailsPayload(e.BookingID, e.Details)
	case *hooks.CallEndedEvent:
		body = callEndedPayload{Outcome: e.Outcome, Stage: e.Stage, BookingID: e.BookingID}
	default:
		body = struct{}{}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}
	return raw, turnID, nil
}

func bookingDetailsPayload(bookingID string, d events.BookingDetails) bookingPayload {
	return bookingPayload{
		BookingID:           bookingID,
		Pickup:              d.PickupAddress,
		Destination:         d.DropoffAddress,
		Passengers:          d.Passengers,
		PickupTime:          d.PickupTimeText,
		SpecialInstructions: d.SpecialInstructions,
	}
}

// describeInput names the inbound event for the log.
func describeInput(ev events.Event) string {
	switch e := ev.(type) {
	case events.ToolSync:
		return "tool_sync"
	case events.BackendResult:
		return "backend:" + string(e.Backend)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%T", ev)
	}
}

// describeAction names the action and extracts its caller-facing text.
func describeAction(act events.Action) (name, prompt string) {
	switch a := act.(type) {
	case events.Ask:
		return "ask", a.Text
	case events.GeocodePickup:
		return "geocode_pickup", ""
	case events.GeocodeDropoff:
		return "geocode_dropoff", ""
	case events.Dispatch:
		return "dispatch", ""
	case events.Amend:
		return "amend", ""
	case events.TransferToHuman:
		return "transfer_to_human", a.Reason
	case events.Hangup:
		return "hangup", a.Text
	case events.None:
		return "none", a.Reason
	case nil:
		return "", ""
	default:
		return fmt.Sprintf("%T", act), ""
	}
}
