package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIntentSynonyms(t *testing.T) {
	cases := map[string]Intent{
		"yes":         IntentConfirm,
		"y":           IntentConfirm,
		"confirm":     IntentConfirm,
		"YES":         IntentConfirm,
		" Confirm ":   IntentConfirm,
		"no":          IntentDecline,
		"decline":     IntentDecline,
		"cancel":      IntentCancel,
		"amend":       IntentAmend,
		"new":         IntentNewBooking,
		"new_booking": IntentNewBooking,
		"":            IntentUnknown,
		"maybe":       IntentUnknown,
		"yes please":  IntentUnknown,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseIntent(in), "input %q", in)
	}
}

func TestVocabularyIsClosed(t *testing.T) {
	// Every variant satisfies its marker interface; a type switch over the
	// closed set must be exhaustive for consumers.
	evs := []Event{ToolSync{}, BackendResult{}}
	require.Len(t, evs, 2)

	acts := []Action{
		Ask{}, GeocodePickup{}, GeocodeDropoff{}, Dispatch{}, Amend{},
		TransferToHuman{}, Hangup{}, None{},
	}
	require.Len(t, acts, 8)
}
