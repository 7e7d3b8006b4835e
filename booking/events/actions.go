package events

import "time"

type (
	// Action is the single outbound instruction produced by each engine step.
	// Exactly one action is returned per event; constructing an action has no
	// side effects. The set is closed and consumers dispatch with a type
	// switch.
	Action interface {
		isAction()
	}

	// Ask instructs the speech layer to speak Text and await the caller's
	// reply.
	Ask struct {
		Text string
	}

	// GeocodePickup asks the shell to resolve the raw pickup address with the
	// geocoder. The shell must deliver exactly one BackendResult tagged
	// BackendGeocodePickup back to the engine.
	GeocodePickup struct {
		Raw string
	}

	// GeocodeDropoff asks the shell to resolve the raw dropoff address. It
	// resolves to a BackendResult tagged BackendGeocodeDropoff.
	GeocodeDropoff struct {
		Raw string
	}

	// Dispatch asks the shell to create the booking with the fleet. It
	// resolves to a BackendResult tagged BackendDispatch.
	Dispatch struct {
		Details BookingDetails
	}

	// Amend asks the shell to update an existing fleet booking. It resolves
	// to a BackendResult tagged BackendAmend.
	Amend struct {
		BookingID string
		Details   BookingDetails
	}

	// TransferToHuman hands the call to a human operator and ends engine
	// involvement.
	TransferToHuman struct {
		Reason string
	}

	// Hangup ends the call after speaking Text.
	Hangup struct {
		Text string
	}

	// None signals that the event produced no outward effect. Reason explains
	// why for logs ("duplicate", "stale backend result").
	None struct {
		Reason string
	}

	// BookingDetails is the flattened slot snapshot carried by Dispatch and
	// Amend actions. Addresses are the geocoder-normalized forms, never the
	// raw spoken text.
	BookingDetails struct {
		// PickupAddress is the verified, normalized pickup address.
		PickupAddress string
		// DropoffAddress is the verified, normalized dropoff address.
		DropoffAddress string
		// Passengers is the party size, 1..8.
		Passengers int
		// PickupTimeText is the normalized pickup time phrase as read back to
		// the caller.
		PickupTimeText string
		// PickupAt is the absolute pickup instant in UTC. Nil when ASAP.
		PickupAt *time.Time
		// ASAP reports an as-soon-as-possible pickup.
		ASAP bool
		// SpecialInstructions carries freeform driver notes, possibly empty.
		SpecialInstructions string
	}
)

func (Ask) isAction()             {}
func (GeocodePickup) isAction()   {}
func (GeocodeDropoff) isAction()  {}
func (Dispatch) isAction()        {}
func (Amend) isAction()           {}
func (TransferToHuman) isAction() {}
func (Hangup) isAction()          {}
func (None) isAction()            {}
