package events

import "strings"

// Intent classifies the caller's conversational intent for a turn.
type Intent string

const (
	// IntentUnknown is any value outside the recognized synonym set,
	// including the empty string.
	IntentUnknown Intent = "unknown"
	// IntentConfirm is an explicit yes. Dispatch is gated on it.
	IntentConfirm Intent = "confirm"
	// IntentDecline is an explicit no.
	IntentDecline Intent = "decline"
	// IntentCancel abandons the booking or amendment.
	IntentCancel Intent = "cancel"
	// IntentAmend asks to change an existing booking.
	IntentAmend Intent = "amend"
	// IntentNewBooking asks to start another booking.
	IntentNewBooking Intent = "new_booking"
)

// ParseIntent maps the closed set of intent keywords emitted by the speech
// model to an Intent. Matching is case-insensitive and ignores surrounding
// whitespace; unrecognized values parse as IntentUnknown.
func ParseIntent(s string) Intent {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "confirm":
		return IntentConfirm
	case "no", "decline":
		return IntentDecline
	case "cancel":
		return IntentCancel
	case "amend":
		return IntentAmend
	case "new", "new_booking":
		return IntentNewBooking
	default:
		return IntentUnknown
	}
}
