package hooks

import (
	"time"

	"cabline.dev/agent/booking/events"
)

// EventType enumerates the call lifecycle events broadcast on the hook bus.
type EventType string

const (
	// CallStarted fires when a call shell begins driving a call.
	CallStarted EventType = "call_started"

	// TurnProcessed fires after the engine consumes one inbound event and
	// produces its action.
	TurnProcessed EventType = "turn_processed"

	// BackendRequested fires when the shell launches an asynchronous backend
	// operation on the engine's behalf.
	BackendRequested EventType = "backend_requested"

	// BackendResolved fires when a backend operation completes, including
	// timeouts and results dropped as superseded.
	BackendResolved EventType = "backend_resolved"

	// BookingCreated fires when the fleet accepts a dispatch and assigns a
	// booking reference.
	BookingCreated EventType = "booking_created"

	// BookingAmended fires when the fleet accepts an amendment to an
	// existing booking.
	BookingAmended EventType = "booking_amended"

	// CallEnded fires when the call loop terminates, whatever the outcome.
	CallEnded EventType = "call_ended"
)

// Call outcomes reported by CallEndedEvent.
const (
	OutcomeCompleted = "completed"
	OutcomeDeclined  = "declined"
	OutcomeEscalated = "escalated"
	OutcomeAbandoned = "abandoned"
)

type (
	// Event is implemented by every hook event. Subscribers use type switches
	// to access event-specific fields:
	//
	//	func (s *recorder) HandleEvent(ctx context.Context, evt hooks.Event) error {
	//	    switch e := evt.(type) {
	//	    case *hooks.TurnProcessedEvent:
	//	        log.Printf("call %s: %s -> %s", e.CallID(), e.StageBefore, e.StageAfter)
	//	    case *hooks.BookingCreatedEvent:
	//	        log.Printf("booked %s", e.BookingID)
	//	    }
	//	    return nil
	//	}
	Event interface {
		// Type returns the event type constant, for filtering without type
		// assertions.
		Type() EventType
		// CallID returns the call this event belongs to. All events for one
		// call share the same ID.
		CallID() string
		// Timestamp returns the Unix timestamp in milliseconds when the event
		// was created.
		Timestamp() int64
	}

	// CallStartedEvent fires when a call shell begins driving a call.
	CallStartedEvent struct {
		baseEvent
		// CallerPhone is the caller's phone number when known.
		CallerPhone string
		// CallerName is the caller's name from the caller ID lookup, empty
		// when the lookup failed or found nothing.
		CallerName string
	}

	// TurnProcessedEvent fires after the engine consumes one inbound event.
	TurnProcessedEvent struct {
		baseEvent
		// TurnID is the speech model turn for tool syncs, empty for backend
		// results.
		TurnID string
		// StageBefore and StageAfter bracket the engine transition.
		StageBefore string
		StageAfter  string
		// Input is the inbound event the engine consumed.
		Input events.Event
		// Action is the single action the engine produced.
		Action events.Action
	}

	// BackendRequestedEvent fires when the shell launches a backend worker.
	BackendRequestedEvent struct {
		baseEvent
		// Backend identifies the requested operation.
		Backend events.BackendKind
		// Seq is the shell's per-kind sequence number for this request.
		Seq uint64
	}

	// BackendResolvedEvent fires when a backend worker completes.
	BackendResolvedEvent struct {
		baseEvent
		// Backend identifies the operation that completed.
		Backend events.BackendKind
		// Seq is the per-kind sequence number of the request.
		Seq uint64
		// OK reports whether the operation succeeded. Timeouts report false.
		OK bool
		// Superseded reports that a newer request of the same kind was issued
		// before this result arrived; the shell dropped it instead of feeding
		// it to the engine.
		Superseded bool
		// Duration is the wall-clock time the operation took.
		Duration time.Duration
	}

	// BookingCreatedEvent fires when the fleet accepts a dispatch.
	BookingCreatedEvent struct {
		baseEvent
		// BookingID is the fleet reference assigned to the booking.
		BookingID string
		// Details is the slot snapshot that was dispatched.
		Details events.BookingDetails
	}

	// BookingAmendedEvent fires when the fleet accepts an amendment.
	BookingAmendedEvent struct {
		baseEvent
		// BookingID is the fleet reference of the amended booking.
		BookingID string
		// Details is the slot snapshot after the amendment.
		Details events.BookingDetails
	}

	// CallEndedEvent fires when the call loop terminates.
	CallEndedEvent struct {
		baseEvent
		// Outcome is one of the Outcome constants.
		Outcome string
		// Stage is the engine stage at termination.
		Stage string
		// BookingID is the fleet reference when the call produced a booking.
		BookingID string
	}

	// baseEvent holds the fields shared by all event types. It is embedded
	// anonymously in each concrete event struct.
	baseEvent struct {
		callID    string
		timestamp int64
	}
)

// NewCallStartedEvent constructs a CallStartedEvent with the current
// timestamp.
func NewCallStartedEvent(callID, callerPhone, callerName string) *CallStartedEvent {
	return &CallStartedEvent{
		baseEvent:   newBaseEvent(callID),
		CallerPhone: callerPhone,
		CallerName:  callerName,
	}
}

// NewTurnProcessedEvent constructs a TurnProcessedEvent bracketing one engine
// step.
func NewTurnProcessedEvent(callID, turnID, before, after string, input events.Event, action events.Action) *TurnProcessedEvent {
	return &TurnProcessedEvent{
		baseEvent:   newBaseEvent(callID),
		TurnID:      turnID,
		StageBefore: before,
		StageAfter:  after,
		Input:       input,
		Action:      action,
	}
}

// NewBackendRequestedEvent constructs a BackendRequestedEvent.
func NewBackendRequestedEvent(callID string, backend events.BackendKind, seq uint64) *BackendRequestedEvent {
	return &BackendRequestedEvent{
		baseEvent: newBaseEvent(callID),
		Backend:   backend,
		Seq:       seq,
	}
}

// NewBackendResolvedEvent constructs a BackendResolvedEvent.
func NewBackendResolvedEvent(callID string, backend events.BackendKind, seq uint64, ok, superseded bool, d time.Duration) *BackendResolvedEvent {
	return &BackendResolvedEvent{
		baseEvent:  newBaseEvent(callID),
		Backend:    backend,
		Seq:        seq,
		OK:         ok,
		Superseded: superseded,
		Duration:   d,
	}
}

// NewBookingCreatedEvent constructs a BookingCreatedEvent.
func NewBookingCreatedEvent(callID, bookingID string, details events.BookingDetails) *BookingCreatedEvent {
	return &BookingCreatedEvent{
		baseEvent: newBaseEvent(callID),
		BookingID: bookingID,
		Details:   details,
	}
}

// NewBookingAmendedEvent constructs a BookingAmendedEvent.
func NewBookingAmendedEvent(callID, bookingID string, details events.BookingDetails) *BookingAmendedEvent {
	return &BookingAmendedEvent{
		baseEvent: newBaseEvent(callID),
		BookingID: bookingID,
		Details:   details,
	}
}

// NewCallEndedEvent constructs a CallEndedEvent.
func NewCallEndedEvent(callID, outcome, stage, bookingID string) *CallEndedEvent {
	return &CallEndedEvent{
		baseEvent: newBaseEvent(callID),
		Outcome:   outcome,
		Stage:     stage,
		BookingID: bookingID,
	}
}

func newBaseEvent(callID string) baseEvent {
	return baseEvent{callID: callID, timestamp: time.Now().UnixMilli()}
}

// CallID returns the call identifier.
func (e baseEvent) CallID() string { return e.callID }

// Timestamp returns the Unix timestamp in milliseconds when the event was
// created.
func (e baseEvent) Timestamp() int64 { return e.timestamp }

func (e *CallStartedEvent) Type() EventType      { return CallStarted }
func (e *TurnProcessedEvent) Type() EventType    { return TurnProcessed }
func (e *BackendRequestedEvent) Type() EventType { return BackendRequested }
func (e *BackendResolvedEvent) Type() EventType  { return BackendResolved }
func (e *BookingCreatedEvent) Type() EventType   { return BookingCreated }
func (e *BookingAmendedEvent) Type() EventType   { return BookingAmended }
func (e *CallEndedEvent) Type() EventType        { return CallEnded }
