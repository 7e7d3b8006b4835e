// Package call runs the booking engine for one live call. The shell owns the
// engine as its single writer: inbound events are serialized through a
// bounded mailbox and processed FIFO by one goroutine, so the engine itself
// never needs locks. Backend work the engine requests (geocoding, dispatch,
// amendments) runs on worker goroutines with a per-request timeout and flows
// back into the mailbox as BackendResult events; caller-facing actions (Ask,
// TransferToHuman, Hangup) flow out on the Actions channel.
package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"cabline.dev/agent/booking/backends"
	"cabline.dev/agent/booking/engine"
	"cabline.dev/agent/booking/events"
	"cabline.dev/agent/booking/hooks"
	"cabline.dev/agent/booking/telemetry"
)

var (
	// ErrCallEnded is returned by Post after the call loop has terminated.
	ErrCallEnded = errors.New("call has ended")

	// ErrMailboxFull is returned by Post when the inbound mailbox is full.
	// The caller may retry after draining Actions.
	ErrMailboxFull = errors.New("call mailbox is full")
)

const (
	// DefaultBackendTimeout bounds each backend request.
	DefaultBackendTimeout = 10 * time.Second

	// DefaultMailboxSize bounds the inbound event queue.
	DefaultMailboxSize = 32

	// defaultActionBuffer is the capacity of the outbound action channel.
	// The speech layer drains it promptly; the writer parks when it fills.
	defaultActionBuffer = 8
)

type (
	// Options configures a Call.
	Options struct {
		// ID identifies the call. A UUID is generated when empty.
		ID string
		// CallerPhone is the caller's phone number when known. Optional.
		CallerPhone string
		// CallerName is the caller's display name from the caller ID lookup.
		// Optional.
		CallerName string
		// Machine is the booking engine driven by this call. Required; the
		// shell becomes the machine's single writer and no other code may
		// call Start or Step on it.
		Machine *engine.Machine
		// Geocoder resolves raw spoken addresses. Required.
		Geocoder backends.Geocoder
		// Dispatcher creates bookings with the fleet. Required.
		Dispatcher backends.Dispatcher
		// Amender updates existing fleet bookings. Required.
		Amender backends.Amender
		// Transferor notifies the operator desk on escalation. Optional;
		// failures are logged, never retried.
		Transferor backends.Transferor
		// Hooks receives lifecycle events. Optional.
		Hooks hooks.Bus
		// Logger, Metrics and Tracer default to no-op implementations.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
		// BackendTimeout bounds each backend request. Defaults to
		// DefaultBackendTimeout.
		BackendTimeout time.Duration
		// MailboxSize bounds the inbound event queue. Defaults to
		// DefaultMailboxSize.
		MailboxSize int
		// ActionBuffer sets the outbound action channel capacity. Defaults
		// to 8.
		ActionBuffer int
	}

	// Call is the shell driving the booking engine for one live call.
	Call struct {
		opts    Options
		id      string
		machine *engine.Machine

		mailbox chan events.Event
		actions chan events.Action
		done    chan struct{}

		ctx    context.Context
		cancel context.CancelFunc

		// mu guards snap, the read-only copy of the engine state refreshed
		// by the writer after every step.
		mu   sync.RWMutex
		snap engine.State

		// seqMu guards seq, the per-kind backend request sequence numbers
		// used to drop superseded results.
		seqMu sync.Mutex
		seq   map[events.BackendKind]uint64

		wg sync.WaitGroup
	}
)

// New validates opts, constructs the shell and launches the writer loop. The
// opening prompt is delivered on Actions; ctx governs the call's lifetime and
// canceling it abandons the call.
func New(ctx context.Context, opts Options) (*Call, error) {
	if opts.Machine == nil {
		return nil, errors.New("machine is required")
	}
	if opts.Geocoder == nil {
		return nil, errors.New("geocoder is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if opts.Amender == nil {
		return nil, errors.New("amender is required")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NewNoopTracer()
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = DefaultBackendTimeout
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	if opts.ActionBuffer <= 0 {
		opts.ActionBuffer = defaultActionBuffer
	}

	c := &Call{
		opts:    opts,
		id:      opts.ID,
		machine: opts.Machine,
		mailbox: make(chan events.Event, opts.MailboxSize),
		actions: make(chan events.Action, opts.ActionBuffer),
		done:    make(chan struct{}),
		seq:     make(map[events.BackendKind]uint64),
		snap:    opts.Machine.Snapshot(),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.loop()
	return c, nil
}

// ID returns the call identifier.
func (c *Call) ID() string { return c.id }

// Actions returns the channel of caller-facing actions. It is closed when
// the call loop ends.
func (c *Call) Actions() <-chan events.Action { return c.actions }

// Done returns a channel closed when the call loop has fully stopped and all
// backend workers have drained.
func (c *Call) Done() <-chan struct{} { return c.done }

// Snapshot returns a deep copy of the engine state as of the last processed
// event. Safe for concurrent use.
func (c *Call) Snapshot() engine.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

// Post enqueues one inbound event for the writer. It never blocks: a full
// mailbox returns ErrMailboxFull and an ended call returns ErrCallEnded.
func (c *Call) Post(ctx context.Context, ev events.Event) error {
	if ev == nil {
		return errors.New("event is required")
	}
	select {
	case <-c.done:
		return ErrCallEnded
	default:
	}
	select {
	case c.mailbox <- ev:
		return nil
	case <-c.done:
		return ErrCallEnded
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrMailboxFull
	}
}

// Close abandons a live call and waits for the loop and its workers to stop.
// It is safe to call multiple times and after the loop has already ended.
func (c *Call) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// loop is the single writer. It owns the machine, serializes every event,
// publishes lifecycle hooks and fans backend work out to workers. It exits
// after the engine emits Hangup or TransferToHuman, or when the call context
// is canceled.
func (c *Call) loop() {
	defer func() {
		c.cancel()
		c.wg.Wait()
		close(c.actions)
		close(c.done)
	}()

	c.publish(c.ctx, hooks.NewCallStartedEvent(c.id, c.opts.CallerPhone, c.opts.CallerName))
	act := c.machine.Start()
	c.store()
	if c.handleAction(act) {
		return
	}
	for {
		select {
		case <-c.ctx.Done():
			c.end(hooks.OutcomeAbandoned)
			return
		case ev := <-c.mailbox:
			before := c.stage()
			act := c.machine.Step(ev)
			c.store()

			turnID := ""
			if ts, ok := ev.(events.ToolSync); ok {
				turnID = ts.TurnID
			}
			c.publish(c.ctx, hooks.NewTurnProcessedEvent(c.id, turnID, before, c.stage(), ev, act))
			c.opts.Metrics.IncCounter("call.turns", 1, "action", actionKind(act))
			c.bookingHooks(ev, act)
			if c.handleAction(act) {
				return
			}
		}
	}
}

// handleAction routes one engine action and reports whether the call is over.
func (c *Call) handleAction(act events.Action) bool {
	switch a := act.(type) {
	case events.Ask:
		c.emit(a)
	case events.GeocodePickup:
		c.launchBackend(events.BackendGeocodePickup, func(ctx context.Context) events.BackendResult {
			return c.geocode(ctx, events.BackendGeocodePickup, a.Raw)
		})
	case events.GeocodeDropoff:
		c.launchBackend(events.BackendGeocodeDropoff, func(ctx context.Context) events.BackendResult {
			return c.geocode(ctx, events.BackendGeocodeDropoff, a.Raw)
		})
	case events.Dispatch:
		c.launchBackend(events.BackendDispatch, func(ctx context.Context) events.BackendResult {
			return c.dispatch(ctx, a.Details)
		})
	case events.Amend:
		c.launchBackend(events.BackendAmend, func(ctx context.Context) events.BackendResult {
			return c.amend(ctx, a.BookingID, a.Details)
		})
	case events.TransferToHuman:
		c.opts.Metrics.IncCounter("call.escalations", 1)
		c.transfer(a.Reason)
		c.emit(a)
		c.end(hooks.OutcomeEscalated)
		return true
	case events.Hangup:
		c.emit(a)
		outcome := hooks.OutcomeDeclined
		if c.stageBookingID() != "" {
			outcome = hooks.OutcomeCompleted
		}
		c.end(outcome)
		return true
	case events.None:
		c.opts.Logger.Debug(c.ctx, "event produced no action", "call_id", c.id, "reason", a.Reason)
	}
	return false
}

// emit hands one caller-facing action to the consumer, giving up when the
// call context is canceled.
func (c *Call) emit(act events.Action) {
	select {
	case c.actions <- act:
	case <-c.ctx.Done():
	}
}

// end publishes the CallEnded hook. It runs on the writer just before the
// loop exits, with cancellation stripped so subscribers can still persist.
func (c *Call) end(outcome string) {
	snap := c.Snapshot()
	c.publish(context.WithoutCancel(c.ctx), hooks.NewCallEndedEvent(c.id, outcome, string(snap.Stage), snap.BookingID))
	c.opts.Metrics.IncCounter("call.ended", 1, "outcome", outcome)
}

// bookingHooks publishes BookingCreated/BookingAmended when a successful
// fleet result was accepted by the engine (a stale result steps to None and
// publishes nothing).
func (c *Call) bookingHooks(ev events.Event, act events.Action) {
	br, ok := ev.(events.BackendResult)
	if !ok || !br.OK {
		return
	}
	if _, dropped := act.(events.None); dropped {
		return
	}
	snap := c.Snapshot()
	switch br.Backend {
	case events.BackendDispatch:
		c.publish(c.ctx, hooks.NewBookingCreatedEvent(c.id, br.BookingID, snap.Details()))
	case events.BackendAmend:
		c.publish(c.ctx, hooks.NewBookingAmendedEvent(c.id, snap.BookingID, snap.Details()))
	}
}

// publish delivers one hook event, logging subscriber failures instead of
// letting them end the call.
func (c *Call) publish(ctx context.Context, evt hooks.Event) {
	if c.opts.Hooks == nil {
		return
	}
	if err := c.opts.Hooks.Publish(ctx, evt); err != nil {
		c.opts.Logger.Error(ctx, "hook publish failed", "call_id", c.id, "event", string(evt.Type()), "err", err)
	}
}

func (c *Call) store() {
	snap := c.machine.Snapshot()
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

func (c *Call) stage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return string(c.snap.Stage)
}

func (c *Call) stageBookingID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.BookingID
}

// actionKind labels actions for metrics and logs.
func actionKind(act events.Action) string {
	switch act.(type) {
	case events.Ask:
		return "ask"
	case events.GeocodePickup:
		return "geocode_pickup"
	case events.GeocodeDropoff:
		return "geocode_dropoff"
	case events.Dispatch:
		return "dispatch"
	case events.Amend:
		return "amend"
	case events.TransferToHuman:
		return "transfer"
	case events.Hangup:
		return "hangup"
	case events.None:
		return "none"
	default:
		return "unknown"
	}
}
