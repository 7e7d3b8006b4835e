// Package speech implements the WebSocket gateway the speech layer connects
// to. Each connection carries exactly one booking call: inbound frames are
// the tool syncs the speech model extracted from caller turns, validated
// against a JSON Schema before they reach the engine, plus a hangup notice
// when the caller drops. Outbound frames mirror the engine's caller-facing
// actions.
package speech

import (
	"encoding/json"

	"cabline.dev/agent/booking/events"
)

// Frame types on the speech wire.
const (
	// FrameToolSync carries the slot values extracted from one caller turn.
	FrameToolSync = "tool_sync"
	// FrameHangup reports that the caller hung up (inbound) or tells the
	// speech layer to end the call after speaking (outbound).
	FrameHangup = "hangup"
	// FrameSay tells the speech layer to speak to the caller.
	FrameSay = "say"
	// FrameTransfer tells the speech layer to patch the caller through to a
	// human operator.
	FrameTransfer = "transfer"
	// FrameError reports a rejected inbound frame. The offending frame is
	// never forwarded to the engine.
	FrameError = "error"
)

type (
	// InboundFrame is one message from the speech layer.
	InboundFrame struct {
		// Type is FrameToolSync or FrameHangup.
		Type string `json:"type"`
		// TurnID identifies the model turn behind a tool sync. Required for
		// tool syncs; the engine uses it to drop duplicate deliveries.
		TurnID string `json:"turn_id,omitempty"`
		// Payload is the tool sync payload, validated before decoding.
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	// ToolPayload is the tool_sync frame payload. Absent fields mean "not
	// mentioned this turn"; the engine diffs each sync against its stored
	// slots.
	ToolPayload struct {
		Pickup              string `json:"pickup,omitempty"`
		Destination         string `json:"destination,omitempty"`
		Passengers          int    `json:"passengers,omitempty"`
		PickupTime          string `json:"pickup_time,omitempty"`
		Intent              string `json:"intent,omitempty"`
		SpecialInstructions string `json:"special_instructions,omitempty"`
	}

	// OutboundFrame is one message to the speech layer.
	OutboundFrame struct {
		// Type is FrameSay, FrameTransfer, FrameHangup or FrameError.
		Type string `json:"type"`
		// Text is the line to speak, set on say and hangup frames.
		Text string `json:"text,omitempty"`
		// Reason explains a transfer to the operator desk.
		Reason string `json:"reason,omitempty"`
		// TurnID echoes the rejected frame's turn on error frames.
		TurnID string `json:"turn_id,omitempty"`
		// Error describes why an inbound frame was rejected.
		Error string `json:"error,omitempty"`
	}
)

// event builds the engine event for a validated tool sync.
func (p ToolPayload) event(turnID string) events.ToolSync {
	return events.ToolSync{
		TurnID:              turnID,
		Pickup:              p.Pickup,
		Destination:         p.Destination,
		Passengers:          p.Passengers,
		PickupTime:          p.PickupTime,
		Intent:              p.Intent,
		SpecialInstructions: p.SpecialInstructions,
	}
}

// actionFrame translates one engine action into its outbound frame. Only
// caller-facing actions reach the Actions channel; anything else reports
// false.
func actionFrame(act events.Action) (OutboundFrame, bool) {
	switch a := act.(type) {
	case events.Ask:
		return OutboundFrame{Type: FrameSay, Text: a.Text}, true
	case events.TransferToHuman:
		return OutboundFrame{Type: FrameTransfer, Reason: a.Reason}, true
	case events.Hangup:
		return OutboundFrame{Type: FrameHangup, Text: a.Text}, true
	default:
		return OutboundFrame{}, false
	}
}
