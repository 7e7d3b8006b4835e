// Package events defines the closed vocabulary exchanged between the booking
// engine and its call shell: inbound events (tool syncs from the speech model,
// results from asynchronous backends) and the single outbound action each
// engine step produces.
package events

type (
	// Event is implemented by every inbound booking event. The set is closed:
	// consumers dispatch with a type switch over ToolSync and BackendResult.
	Event interface {
		isEvent()
	}

	// ToolSync carries the slot values the speech model extracted from one
	// caller turn. Empty string and zero int fields mean "not mentioned this
	// turn"; the engine diffs the sync against stored slots and ignores
	// unchanged values.
	ToolSync struct {
		// TurnID identifies the model turn that produced this sync. The engine
		// drops a sync whose TurnID matches the last processed one.
		TurnID string
		// Pickup is the raw pickup address as spoken.
		Pickup string
		// Destination is the raw dropoff address as spoken.
		Destination string
		// Passengers is the party size. Zero means not mentioned; values
		// outside 1..8 are dropped by the patch extractor.
		Passengers int
		// PickupTime is the raw pickup time phrase ("ASAP", "half past five").
		PickupTime string
		// Intent is the caller intent keyword reported by the model, one of
		// the closed synonym set understood by ParseIntent.
		Intent string
		// SpecialInstructions carries freeform driver notes.
		SpecialInstructions string
	}

	// BackendKind tags a BackendResult with the backend operation that
	// produced it. Kinds correspond one-to-one with the backend-requesting
	// actions.
	BackendKind string

	// BackendResult reports the outcome of an asynchronous backend operation
	// previously requested through a GeocodePickup, GeocodeDropoff, Dispatch
	// or Amend action. The shell delivers exactly one result per request.
	BackendResult struct {
		// Backend identifies the operation this result answers.
		Backend BackendKind
		// OK reports whether the operation succeeded.
		OK bool
		// NormalizedAddress is the geocoder's canonical form of the requested
		// address. Set only on successful geocode results.
		NormalizedAddress string
		// BookingID is the fleet reference assigned to the booking. Set only
		// on successful dispatch results.
		BookingID string
		// Err describes the backend failure when OK is false. Timeouts are
		// reported the same way as vendor rejections.
		Err string
	}
)

const (
	// BackendGeocodePickup answers a GeocodePickup action.
	BackendGeocodePickup BackendKind = "geocode_pickup"
	// BackendGeocodeDropoff answers a GeocodeDropoff action.
	BackendGeocodeDropoff BackendKind = "geocode_dropoff"
	// BackendDispatch answers a Dispatch action.
	BackendDispatch BackendKind = "dispatch"
	// BackendAmend answers an Amend action.
	BackendAmend BackendKind = "amend"
)

func (ToolSync) isEvent()      {}
func (BackendResult) isEvent() {}
