package engine

import (
	"fmt"
	"time"

	"cabline.dev/agent/booking/events"
)

// Stage identifies the engine's position in the booking conversation.
type Stage string

const (
	StageStart             Stage = "start"
	StageCollectPickup     Stage = "collect_pickup"
	StageCollectDropoff    Stage = "collect_dropoff"
	StageCollectPassengers Stage = "collect_passengers"
	StageCollectTime       Stage = "collect_time"
	StageConfirmDetails    Stage = "confirm_details"
	StageDispatching       Stage = "dispatching"
	StageBooked            Stage = "booked"
	StageAmendMenu         Stage = "amend_menu"

	StageAmendCollectPickup     Stage = "amend_collect_pickup"
	StageAmendCollectDropoff    Stage = "amend_collect_dropoff"
	StageAmendCollectPassengers Stage = "amend_collect_passengers"
	StageAmendCollectTime       Stage = "amend_collect_time"
	StageAmendConfirm           Stage = "amend_confirm"

	StageEnd      Stage = "end"
	StageEscalate Stage = "escalate"
)

// Stages lists every stage the engine can occupy.
var Stages = []Stage{
	StageStart, StageCollectPickup, StageCollectDropoff, StageCollectPassengers,
	StageCollectTime, StageConfirmDetails, StageDispatching, StageBooked,
	StageAmendMenu, StageAmendCollectPickup, StageAmendCollectDropoff,
	StageAmendCollectPassengers, StageAmendCollectTime, StageAmendConfirm,
	StageEnd, StageEscalate,
}

// Terminal reports whether the stage absorbs all further events.
func (s Stage) Terminal() bool { return s == StageEnd || s == StageEscalate }

// amending reports whether the stage belongs to the post-booking flow.
func (s Stage) amending() bool {
	switch s {
	case StageBooked, StageAmendMenu, StageAmendCollectPickup,
		StageAmendCollectDropoff, StageAmendCollectPassengers,
		StageAmendCollectTime, StageAmendConfirm:
		return true
	}
	return false
}

// Verification names the address slot with an outstanding geocode request.
type Verification string

const (
	VerifyNone    Verification = ""
	VerifyPickup  Verification = "pickup"
	VerifyDropoff Verification = "dropoff"
)

// RetryKey identifies one bounded retry counter.
type RetryKey string

const (
	RetryPickup        RetryKey = "pickup"
	RetryDropoff       RetryKey = "dropoff"
	RetryPassengers    RetryKey = "passengers"
	RetryTime          RetryKey = "time"
	RetryConfirm       RetryKey = "confirm"
	RetryPickupVerify  RetryKey = "pickup_verify"
	RetryDropoffVerify RetryKey = "dropoff_verify"
	RetryAmendMenu     RetryKey = "amend_menu"
)

// RetryKeys lists every retry counter key.
var RetryKeys = []RetryKey{
	RetryPickup, RetryDropoff, RetryPassengers, RetryTime,
	RetryConfirm, RetryPickupVerify, RetryDropoffVerify, RetryAmendMenu,
}

// Caps bounds each retry counter. Exceeding a cap escalates the call to a
// human operator.
type Caps struct {
	Pickup        int
	Dropoff       int
	Passengers    int
	Time          int
	Confirm       int
	PickupVerify  int
	DropoffVerify int
	AmendMenu     int
}

// DefaultCaps returns the production retry caps.
func DefaultCaps() Caps {
	return Caps{
		Pickup:        3,
		Dropoff:       3,
		Passengers:    2,
		Time:          2,
		Confirm:       2,
		PickupVerify:  3,
		DropoffVerify: 3,
		AmendMenu:     1,
	}
}

// Cap returns the configured cap for key.
func (c Caps) Cap(key RetryKey) int {
	switch key {
	case RetryPickup:
		return c.Pickup
	case RetryDropoff:
		return c.Dropoff
	case RetryPassengers:
		return c.Passengers
	case RetryTime:
		return c.Time
	case RetryConfirm:
		return c.Confirm
	case RetryPickupVerify:
		return c.PickupVerify
	case RetryDropoffVerify:
		return c.DropoffVerify
	case RetryAmendMenu:
		return c.AmendMenu
	default:
		return 0
	}
}

func (c Caps) validate() error {
	for _, key := range RetryKeys {
		if c.Cap(key) < 1 {
			return fmt.Errorf("retry cap %s must be at least 1", key)
		}
	}
	return nil
}

// Counters tracks per-key retry counts. A missing key counts as zero.
type Counters map[RetryKey]int

// Get returns the count for key.
func (c Counters) Get(key RetryKey) int { return c[key] }

// increment adds one to key's counter and returns the new count.
func (c Counters) increment(key RetryKey) int {
	c[key]++
	return c[key]
}

// reset clears key's counter.
func (c Counters) reset(key RetryKey) { delete(c, key) }

func (c Counters) clone() Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type (
	// AddressSlot holds one address through collection and verification.
	AddressSlot struct {
		// Raw is the address exactly as spoken.
		Raw string
		// Normalized is the geocoder's canonical form, when it provided one.
		Normalized string
		// Verified reports a successful geocode of Raw in this call. Any
		// change to Raw clears it.
		Verified bool
	}

	// PickupTime is the parsed pickup time slot.
	PickupTime struct {
		// Raw is the normalized phrase produced by the time parser.
		Raw string
		// Absolute is the pickup instant in UTC, nil exactly when ASAP.
		Absolute *time.Time
		// ASAP reports an as-soon-as-possible pickup.
		ASAP bool
	}

	// Slots holds the collected booking fields. Passengers is zero until
	// provided, then 1..8; PickupTime is nil until provided.
	Slots struct {
		Pickup              AddressSlot
		Dropoff             AddressSlot
		Passengers          int
		PickupTime          *PickupTime
		SpecialInstructions string
	}

	// State is the complete booking state for one call. It is owned by the
	// single writer driving the engine; Snapshot hands out deep copies.
	State struct {
		Stage   Stage
		Slots   Slots
		Retries Counters
		// Pending names the address slot with an outstanding geocode request.
		Pending Verification
		// BookingID is the fleet reference. Set once by a successful
		// dispatch, never cleared.
		BookingID string
		// LastPrompt is the most recent Ask text, re-asked verbatim when a
		// confirmation turn is ambiguous.
		LastPrompt string
		// LastTurnID is the most recent processed tool turn, for dedupe.
		LastTurnID string
		// AmendInFlight marks an amendment awaiting its backend result.
		AmendInFlight bool
	}
)

// Present reports whether the caller has provided the address.
func (s AddressSlot) Present() bool { return s.Raw != "" }

// Best returns the normalized address when available, the raw text otherwise.
func (s AddressSlot) Best() string {
	if s.Verified && s.Normalized != "" {
		return s.Normalized
	}
	return s.Raw
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Retries = s.Retries.clone()
	if s.Slots.PickupTime != nil {
		pt := *s.Slots.PickupTime
		if pt.Absolute != nil {
			t := *pt.Absolute
			pt.Absolute = &t
		}
		out.Slots.PickupTime = &pt
	}
	return out
}

// Details flattens the slots into the snapshot carried by Dispatch and Amend
// actions.
func (s State) Details() events.BookingDetails {
	d := events.BookingDetails{
		PickupAddress:       s.Slots.Pickup.Best(),
		DropoffAddress:      s.Slots.Dropoff.Best(),
		Passengers:          s.Slots.Passengers,
		SpecialInstructions: s.Slots.SpecialInstructions,
	}
	if pt := s.Slots.PickupTime; pt != nil {
		d.PickupTimeText = pt.Raw
		d.ASAP = pt.ASAP
		if pt.Absolute != nil {
			t := *pt.Absolute
			d.PickupAt = &t
		}
	}
	return d
}
