package engine

import (
	"fmt"

	"cabline.dev/agent/booking/backends"
)

// Prompt texts spoken to the caller. The readback wording is part of the
// contract: it lists every slot, ends on an explicit yes/no question and
// avoids closing words so the speech model cannot present the booking as
// already made.
const (
	promptWelcome = "Welcome to Cabline. What is the pickup address?"

	promptPickupFirst     = "What is the pickup address?"
	promptPickupReprompt  = "I still need the pickup address. Where should the driver collect you?"
	promptPickupExhausted = "Pickup address not provided."

	promptDropoffFirst     = "Where would you like to go?"
	promptDropoffReprompt  = "I still need the destination. What address are you going to?"
	promptDropoffExhausted = "Destination not provided."

	promptPassengersFirst     = "How many passengers will be travelling?"
	promptPassengersReprompt  = "How many passengers, from one to eight?"
	promptPassengersExhausted = "Passenger count not provided."

	promptTimeFirst     = "When would you like the pickup?"
	promptTimeReprompt  = "When should the car arrive? You can give a time or say ASAP."
	promptTimeExhausted = "Pickup time not provided."

	promptConfirmExhausted = "Confirmation unclear too many times."

	promptPickupUnresolved  = "Pickup address could not be resolved."
	promptDropoffUnresolved = "Destination address could not be resolved."

	promptDeclineGoodbye = "No problem. Goodbye."
	promptCancelGoodbye  = "Okay. Goodbye."
	promptAmendGoodbye   = "Thanks for calling. Goodbye."
	promptCallComplete   = "call complete"

	promptAmendMenu = "Tell me what you'd like to change: pickup, destination, passengers, or time."
	promptAmendDone = "Updated. Is there anything else you'd like to change?"

	promptDispatchFailed = "Dispatch failed."
	promptAmendFailed    = "Amendment failed."
)

// None reasons, surfaced in logs only.
const (
	reasonDuplicate        = "duplicate"
	reasonStaleResult      = "stale backend result"
	reasonDispatchInFlight = "dispatch in progress"
	reasonAmendInFlight    = "amendment in progress"
	reasonUnknownEvent     = "unknown event"
	reasonUnknownBackend   = "unexpected backend result"
)

// readback renders the confirmation question for the collected booking.
func readback(slots Slots) string {
	return fmt.Sprintf(
		"Let me check the details. Pickup from %s, going to %s, %d passengers, pickup time %s. Is that right, yes or no?",
		slots.Pickup.Best(), slots.Dropoff.Best(), slots.Passengers, timeText(slots),
	)
}

// amendReadback renders the confirmation question for amended details.
func amendReadback(slots Slots) string {
	return fmt.Sprintf(
		"Here are the updated details. Pickup from %s, going to %s, %d passengers, pickup time %s. Shall I update the booking, yes or no?",
		slots.Pickup.Best(), slots.Dropoff.Best(), slots.Passengers, timeText(slots),
	)
}

// bookedPrompt announces the booking reference and offers amendments.
func bookedPrompt(bookingID string) string {
	return fmt.Sprintf("Booked. Your reference is %s. Would you like to amend anything?", bookingID)
}

// pickupClarify asks the caller to repeat a pickup address the geocoder could
// not resolve. When the address parser finds a street with no house number,
// the question asks for the number directly.
func pickupClarify(raw string, parse backends.AddressParser) string {
	if street := missingHouseNumberStreet(raw, parse); street != "" {
		return fmt.Sprintf("I couldn't find that pickup address. What is the house number on %s?", street)
	}
	return "I couldn't find that pickup address. Could you say it again with the house number and street?"
}

// dropoffClarify is the destination counterpart of pickupClarify.
func dropoffClarify(raw string, parse backends.AddressParser) string {
	if street := missingHouseNumberStreet(raw, parse); street != "" {
		return fmt.Sprintf("I couldn't find that destination. What is the house number on %s?", street)
	}
	return "I couldn't find that destination. Could you say it again with the house number and street?"
}

func missingHouseNumberStreet(raw string, parse backends.AddressParser) string {
	if parse == nil {
		return ""
	}
	info := parse(raw)
	if info.IsStreetType && !info.HasHouseNumber && info.StreetName != "" {
		return info.StreetName
	}
	return ""
}

func timeText(slots Slots) string {
	if slots.PickupTime == nil {
		return ""
	}
	return slots.PickupTime.Raw
}
