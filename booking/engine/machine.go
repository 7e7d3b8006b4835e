// Package engine implements the deterministic booking state machine at the
// heart of the agent. The machine owns all booking state for one call and
// turns each inbound event into exactly one outbound action: it never blocks,
// never performs I/O, never panics, and never spawns goroutines. Everything
// asynchronous (geocoding, dispatch, amendments, timeouts) happens in the
// call shell, which feeds outcomes back in as BackendResult events.
package engine

import (
	"errors"

	"cabline.dev/agent/booking/backends"
	"cabline.dev/agent/booking/events"
)

type (
	// Options configures a Machine.
	Options struct {
		// Caps bounds the retry counters. The zero value selects
		// DefaultCaps; otherwise every cap must be at least one.
		Caps Caps
		// ParseTime resolves spoken pickup time phrases. Required.
		ParseTime backends.TimeParser
		// ParseAddress decomposes raw addresses to sharpen geocode-failure
		// reprompts. Optional.
		ParseAddress backends.AddressParser
		// Welcome overrides the opening prompt. Optional.
		Welcome string
	}

	// Machine is the deterministic booking engine for one call. It is not
	// safe for concurrent use: the call shell serializes all events through
	// a single writer.
	Machine struct {
		opts    Options
		st      State
		started bool
	}
)

// stageRetryKey maps each stage to the collect counter that is reset when the
// flow pivots away from it.
var stageRetryKey = map[Stage]RetryKey{
	StageCollectPickup:          RetryPickup,
	StageCollectDropoff:         RetryDropoff,
	StageCollectPassengers:      RetryPassengers,
	StageCollectTime:            RetryTime,
	StageConfirmDetails:         RetryConfirm,
	StageAmendCollectPickup:     RetryPickup,
	StageAmendCollectDropoff:    RetryDropoff,
	StageAmendCollectPassengers: RetryPassengers,
	StageAmendCollectTime:       RetryTime,
	StageAmendConfirm:           RetryConfirm,
	StageBooked:                 RetryAmendMenu,
	StageAmendMenu:              RetryAmendMenu,
}

// New constructs a Machine for a single call.
func New(opts Options) (*Machine, error) {
	if opts.ParseTime == nil {
		return nil, errors.New("time parser is required")
	}
	if opts.Caps == (Caps{}) {
		opts.Caps = DefaultCaps()
	}
	if err := opts.Caps.validate(); err != nil {
		return nil, err
	}
	if opts.Welcome == "" {
		opts.Welcome = promptWelcome
	}
	return &Machine{
		opts: opts,
		st:   State{Stage: StageStart, Retries: make(Counters)},
	}, nil
}

// Start initializes the call and returns the opening ask. It must be called
// exactly once, before any Step.
func (m *Machine) Start() events.Action {
	if m.started {
		return events.None{Reason: "already started"}
	}
	m.started = true
	m.st.Stage = StageCollectPickup
	m.st.LastPrompt = m.opts.Welcome
	return events.Ask{Text: m.opts.Welcome}
}

// Snapshot returns a deep copy of the current state for observers and tests.
func (m *Machine) Snapshot() State { return m.st.Clone() }

// Step applies one event and returns the single resulting action. Every
// failure mode is a normal transition; Step never fails.
func (m *Machine) Step(ev events.Event) events.Action {
	switch e := ev.(type) {
	case events.ToolSync:
		return m.stepTool(e)
	case events.BackendResult:
		return m.stepBackend(e)
	default:
		return m.escalate(reasonUnknownEvent)
	}
}

// stepTool routes one speech model turn. Dispatch order: duplicate turns are
// dropped first, terminal stages absorb everything, in-flight backend rounds
// park the turn, then the amend flow, confirm gate and collection flow apply
// in that order.
func (m *Machine) stepTool(t events.ToolSync) events.Action {
	if t.TurnID != "" && t.TurnID == m.st.LastTurnID {
		return events.None{Reason: reasonDuplicate}
	}
	if t.TurnID != "" {
		m.st.LastTurnID = t.TurnID
	}
	if m.st.Stage.Terminal() {
		return events.Hangup{Text: promptCallComplete}
	}
	if m.st.Stage == StageDispatching {
		return events.None{Reason: reasonDispatchInFlight}
	}
	p := buildPatch(t, m.st.Slots, m.opts.ParseTime)
	if m.st.Stage.amending() && m.st.BookingID != "" {
		return m.amendFlow(p)
	}
	if m.st.Stage == StageConfirmDetails {
		return m.confirmGate(p)
	}
	return m.collect(p)
}

// collect advances the pre-booking flow: address changes always pivot to
// verification, everything else falls through to the current stage handler.
func (m *Machine) collect(p Patch) events.Action {
	m.st.apply(p)
	if p.PickupChanged {
		return m.requestGeocode(VerifyPickup, StageCollectPickup)
	}
	if p.DropoffChanged {
		return m.requestGeocode(VerifyDropoff, StageCollectDropoff)
	}
	switch m.st.Stage {
	case StageStart, StageCollectPickup:
		if !m.st.Slots.Pickup.Present() {
			return m.askWithRetry(RetryPickup, promptPickupFirst, promptPickupReprompt, promptPickupExhausted)
		}
		if !m.st.Slots.Pickup.Verified {
			return m.requestGeocode(VerifyPickup, StageCollectPickup)
		}
		return m.nextMissingOrConfirm()
	case StageCollectDropoff:
		if !m.st.Slots.Dropoff.Present() {
			return m.askWithRetry(RetryDropoff, promptDropoffFirst, promptDropoffReprompt, promptDropoffExhausted)
		}
		if !m.st.Slots.Dropoff.Verified {
			return m.requestGeocode(VerifyDropoff, StageCollectDropoff)
		}
		return m.nextMissingOrConfirm()
	case StageCollectPassengers:
		if !m.st.Slots.Dropoff.Verified {
			// A destination correction landed while collecting passengers;
			// finish verifying it before moving on.
			m.setStage(StageCollectDropoff)
			if !m.st.Slots.Dropoff.Present() {
				return m.askWithRetry(RetryDropoff, promptDropoffFirst, promptDropoffReprompt, promptDropoffExhausted)
			}
			return m.requestGeocode(VerifyDropoff, StageCollectDropoff)
		}
		if m.st.Slots.Passengers == 0 {
			return m.askWithRetry(RetryPassengers, promptPassengersFirst, promptPassengersReprompt, promptPassengersExhausted)
		}
		return m.nextMissingOrConfirm()
	case StageCollectTime:
		if m.st.Slots.PickupTime == nil {
			return m.askWithRetry(RetryTime, promptTimeFirst, promptTimeReprompt, promptTimeExhausted)
		}
		return m.nextMissingOrConfirm()
	default:
		return m.nextMissingOrConfirm()
	}
}

// confirmGate handles turns in confirm_details. Dispatch happens only on an
// explicit confirm; slot changes re-route and never imply confirmation.
func (m *Machine) confirmGate(p Patch) events.Action {
	switch p.Intent {
	case events.IntentConfirm:
		m.setStage(StageDispatching)
		return events.Dispatch{Details: m.st.Details()}
	case events.IntentDecline, events.IntentCancel:
		m.setStage(StageEnd)
		return events.Hangup{Text: promptDeclineGoodbye}
	}
	if p.HasSlotChanges() {
		m.st.apply(p)
		if p.PickupChanged {
			return m.requestGeocode(VerifyPickup, StageCollectPickup)
		}
		if p.DropoffChanged {
			return m.requestGeocode(VerifyDropoff, StageCollectDropoff)
		}
		return m.nextMissingOrConfirm()
	}
	if m.st.Retries.increment(RetryConfirm) > m.opts.Caps.Confirm {
		return m.escalate(promptConfirmExhausted)
	}
	return events.Ask{Text: m.st.LastPrompt}
}

// amendFlow routes post-booking turns. Non-address changes are amended
// immediately; address changes re-verify through geocoding and an explicit
// confirmation before the amendment is sent.
func (m *Machine) amendFlow(p Patch) events.Action {
	if m.st.AmendInFlight {
		return events.None{Reason: reasonAmendInFlight}
	}
	if p.Intent == events.IntentCancel {
		m.setStage(StageEnd)
		return events.Hangup{Text: promptCancelGoodbye}
	}
	if p.HasSlotChanges() {
		m.st.apply(p)
		if p.PickupChanged {
			return m.requestGeocode(VerifyPickup, StageAmendCollectPickup)
		}
		if p.DropoffChanged {
			return m.requestGeocode(VerifyDropoff, StageAmendCollectDropoff)
		}
		return m.sendAmend()
	}
	if p.Intent == events.IntentDecline {
		m.setStage(StageEnd)
		return events.Hangup{Text: promptAmendGoodbye}
	}
	if m.st.Stage == StageAmendConfirm {
		if p.Intent == events.IntentConfirm {
			return m.sendAmend()
		}
		if m.st.Retries.increment(RetryConfirm) > m.opts.Caps.Confirm {
			return m.escalate(promptConfirmExhausted)
		}
		return events.Ask{Text: m.st.LastPrompt}
	}
	if m.st.Retries.increment(RetryAmendMenu) > m.opts.Caps.AmendMenu {
		m.setStage(StageEnd)
		return events.Hangup{Text: promptAmendGoodbye}
	}
	m.setStage(StageAmendMenu)
	m.st.LastPrompt = promptAmendMenu
	return events.Ask{Text: promptAmendMenu}
}

// stepBackend consumes one backend result. Acceptance is gated by stage so
// late or superseded results cannot advance the flow.
func (m *Machine) stepBackend(r events.BackendResult) events.Action {
	if m.st.Stage.Terminal() {
		return events.Hangup{Text: promptCallComplete}
	}
	switch r.Backend {
	case events.BackendGeocodePickup:
		if m.st.Stage != StageCollectPickup && m.st.Stage != StageAmendCollectPickup {
			return events.None{Reason: reasonStaleResult}
		}
		return m.pickupGeocoded(r)
	case events.BackendGeocodeDropoff:
		if m.st.Stage != StageCollectDropoff && m.st.Stage != StageAmendCollectDropoff {
			return events.None{Reason: reasonStaleResult}
		}
		return m.dropoffGeocoded(r)
	case events.BackendDispatch:
		if m.st.Stage != StageDispatching {
			return events.None{Reason: reasonStaleResult}
		}
		return m.dispatched(r)
	case events.BackendAmend:
		if m.st.Stage != StageAmendConfirm || !m.st.AmendInFlight {
			return events.None{Reason: reasonStaleResult}
		}
		return m.amended(r)
	default:
		return m.escalate(reasonUnknownBackend)
	}
}

func (m *Machine) pickupGeocoded(r events.BackendResult) events.Action {
	m.st.Pending = VerifyNone
	if !r.OK {
		if m.st.Retries.increment(RetryPickupVerify) > m.opts.Caps.PickupVerify {
			return m.escalate(promptPickupUnresolved)
		}
		text := pickupClarify(m.st.Slots.Pickup.Raw, m.opts.ParseAddress)
		m.st.LastPrompt = text
		return events.Ask{Text: text}
	}
	if r.NormalizedAddress != "" {
		m.st.Slots.Pickup.Normalized = r.NormalizedAddress
	}
	m.st.Slots.Pickup.Verified = true
	if m.st.Stage == StageAmendCollectPickup {
		return m.askAmendReadback()
	}
	return m.nextMissingOrConfirm()
}

func (m *Machine) dropoffGeocoded(r events.BackendResult) events.Action {
	m.st.Pending = VerifyNone
	if !r.OK {
		if m.st.Retries.increment(RetryDropoffVerify) > m.opts.Caps.DropoffVerify {
			return m.escalate(promptDropoffUnresolved)
		}
		text := dropoffClarify(m.st.Slots.Dropoff.Raw, m.opts.ParseAddress)
		m.st.LastPrompt = text
		return events.Ask{Text: text}
	}
	if r.NormalizedAddress != "" {
		m.st.Slots.Dropoff.Normalized = r.NormalizedAddress
	}
	m.st.Slots.Dropoff.Verified = true
	if m.st.Stage == StageAmendCollectDropoff {
		return m.askAmendReadback()
	}
	return m.nextMissingOrConfirm()
}

func (m *Machine) dispatched(r events.BackendResult) events.Action {
	if !r.OK {
		return m.escalate(promptDispatchFailed)
	}
	m.st.BookingID = r.BookingID
	m.setStage(StageBooked)
	text := bookedPrompt(r.BookingID)
	m.st.LastPrompt = text
	return events.Ask{Text: text}
}

func (m *Machine) amended(r events.BackendResult) events.Action {
	m.st.AmendInFlight = false
	if !r.OK {
		return m.escalate(promptAmendFailed)
	}
	m.setStage(StageBooked)
	m.st.LastPrompt = promptAmendDone
	return events.Ask{Text: promptAmendDone}
}

// nextMissingOrConfirm walks the slots in collection order and jumps to the
// first unsatisfied step: missing slots are asked for, unverified addresses
// re-geocoded. With everything satisfied it moves to confirmation and asks
// the readback.
func (m *Machine) nextMissingOrConfirm() events.Action {
	slots := m.st.Slots
	switch {
	case !slots.Pickup.Present():
		m.setStage(StageCollectPickup)
		return m.askWithRetry(RetryPickup, promptPickupFirst, promptPickupReprompt, promptPickupExhausted)
	case !slots.Pickup.Verified:
		return m.requestGeocode(VerifyPickup, StageCollectPickup)
	case !slots.Dropoff.Present():
		m.setStage(StageCollectDropoff)
		return m.askWithRetry(RetryDropoff, promptDropoffFirst, promptDropoffReprompt, promptDropoffExhausted)
	case !slots.Dropoff.Verified:
		return m.requestGeocode(VerifyDropoff, StageCollectDropoff)
	case slots.Passengers == 0:
		m.setStage(StageCollectPassengers)
		return m.askWithRetry(RetryPassengers, promptPassengersFirst, promptPassengersReprompt, promptPassengersExhausted)
	case slots.PickupTime == nil:
		m.setStage(StageCollectTime)
		return m.askWithRetry(RetryTime, promptTimeFirst, promptTimeReprompt, promptTimeExhausted)
	default:
		m.setStage(StageConfirmDetails)
		text := readback(m.st.Slots)
		m.st.LastPrompt = text
		return events.Ask{Text: text}
	}
}

// askAmendReadback moves to amend confirmation and asks the amend readback.
func (m *Machine) askAmendReadback() events.Action {
	m.setStage(StageAmendConfirm)
	text := amendReadback(m.st.Slots)
	m.st.LastPrompt = text
	return events.Ask{Text: text}
}

// sendAmend emits the amendment for the stored slots and marks it in flight.
func (m *Machine) sendAmend() events.Action {
	m.setStage(StageAmendConfirm)
	m.st.AmendInFlight = true
	return events.Amend{BookingID: m.st.BookingID, Details: m.st.Details()}
}

// requestGeocode parks the flow on address verification and emits the
// matching geocode action for the stored raw address.
func (m *Machine) requestGeocode(v Verification, stage Stage) events.Action {
	m.setStage(stage)
	m.st.Pending = v
	if v == VerifyPickup {
		return events.GeocodePickup{Raw: m.st.Slots.Pickup.Raw}
	}
	return events.GeocodeDropoff{Raw: m.st.Slots.Dropoff.Raw}
}

// askWithRetry reprompts for a missing slot, escalating when the key's cap
// is exhausted. The first ask (counter zero) uses the primary text.
func (m *Machine) askWithRetry(key RetryKey, first, reprompt, exhausted string) events.Action {
	if m.st.Retries.Get(key) == 0 {
		m.st.Retries.increment(key)
		m.st.LastPrompt = first
		return events.Ask{Text: first}
	}
	if m.st.Retries.increment(key) > m.opts.Caps.Cap(key) {
		return m.escalate(exhausted)
	}
	m.st.LastPrompt = reprompt
	return events.Ask{Text: reprompt}
}

// escalate moves to the terminal escalate stage and hands the call to a
// human operator.
func (m *Machine) escalate(reason string) events.Action {
	m.setStage(StageEscalate)
	return events.TransferToHuman{Reason: reason}
}

// setStage transitions stages and resets the departed stage's collect
// counter so a later return to it starts fresh. A stage that cannot consume
// the pending geocode result drops the pending marker: the result would be
// gated as stale anyway.
func (m *Machine) setStage(next Stage) {
	if m.st.Stage == next {
		return
	}
	prev, hasPrev := stageRetryKey[m.st.Stage]
	if cur, hasCur := stageRetryKey[next]; hasPrev && (!hasCur || cur != prev) {
		m.st.Retries.reset(prev)
	}
	switch {
	case next.Terminal():
		m.st.Pending = VerifyNone
	case m.st.Pending == VerifyPickup && next != StageCollectPickup && next != StageAmendCollectPickup:
		m.st.Pending = VerifyNone
	case m.st.Pending == VerifyDropoff && next != StageCollectDropoff && next != StageAmendCollectDropoff:
		m.st.Pending = VerifyNone
	}
	m.st.Stage = next
}
