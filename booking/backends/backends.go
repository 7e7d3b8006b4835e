// Package backends declares the collaborator contracts the booking engine and
// its call shell consume: pure parsing functions injected into the engine and
// the asynchronous vendor operations the shell performs on the engine's
// behalf. The engine never implements or calls any of these directly; it only
// emits actions that the shell resolves through them.
package backends

import (
	"context"
	"time"

	"cabline.dev/agent/booking/events"
)

type (
	// ParsedTime is the outcome of parsing a spoken pickup time phrase.
	ParsedTime struct {
		// Normalized is the canonical rendering stored in the booking and
		// read back to the caller ("ASAP", "today 17:30").
		Normalized string
		// ASAP reports an as-soon-as-possible pickup.
		ASAP bool
		// AbsoluteUTC is the resolved pickup instant in UTC. Nil exactly when
		// ASAP is true.
		AbsoluteUTC *time.Time
	}

	// TimeParser resolves a spoken UK time phrase. A nil result means the
	// phrase is unparseable; the engine then treats the time as not provided
	// and reprompts.
	TimeParser func(text string) *ParsedTime

	// AddressInfo is the decomposition of a raw spoken address.
	AddressInfo struct {
		// HouseNumber is the leading house number ("12", "12a"), empty when
		// absent.
		HouseNumber string
		// FlatOrUnit is the flat, unit or apartment qualifier, empty when
		// absent.
		FlatOrUnit string
		// StreetName is the street portion without house number or town.
		StreetName string
		// TownOrArea is the trailing locality, empty when absent.
		TownOrArea string
		// IsStreetType reports whether the text names a street rather than a
		// venue or landmark.
		IsStreetType bool
		// HasHouseNumber reports whether a house number was found.
		HasHouseNumber bool
	}

	// AddressParser decomposes a raw spoken address. The engine consults it
	// only to sharpen geocode-failure reprompts (a street-type address with
	// no house number is asked for one); it never gates progression on it.
	AddressParser func(text string) AddressInfo

	// GeocodeResult is the geocoder's answer for one raw address.
	GeocodeResult struct {
		// OK reports an unambiguous resolution. Ambiguous answers surface as
		// not OK with Alternatives populated.
		OK bool
		// NormalizedAddress is the canonical address when OK.
		NormalizedAddress string
		// Ambiguous reports that the address matched several candidates.
		Ambiguous bool
		// Alternatives lists candidate addresses for ambiguous answers.
		Alternatives []string
		// Err describes a vendor-side failure, empty when OK.
		Err string
	}

	// Geocoder resolves raw spoken addresses to canonical ones. The returned
	// error covers transport failures only; vendor-side outcomes, including
	// "not found", are carried in the result.
	Geocoder interface {
		Geocode(ctx context.Context, raw string) (GeocodeResult, error)
	}

	// DispatchResult is the fleet's answer to a booking creation.
	DispatchResult struct {
		OK bool
		// BookingID is the fleet reference when OK.
		BookingID string
		// Err describes the rejection when not OK.
		Err string
	}

	// Dispatcher creates bookings with the fleet.
	Dispatcher interface {
		Dispatch(ctx context.Context, details events.BookingDetails) (DispatchResult, error)
	}

	// AmendResult is the fleet's answer to a booking amendment.
	AmendResult struct {
		OK bool
		// Err describes the rejection when not OK.
		Err string
	}

	// Amender updates existing fleet bookings.
	Amender interface {
		Amend(ctx context.Context, bookingID string, details events.BookingDetails) (AmendResult, error)
	}

	// Transferor notifies the operator desk that a call needs a human. It is
	// a fire-and-forget sink: the call ends regardless of the outcome, so
	// failures are logged, never retried.
	Transferor interface {
		Transfer(ctx context.Context, callID, reason string) error
	}
)
