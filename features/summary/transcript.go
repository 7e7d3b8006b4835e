package summary

import (
	"encoding/json"
	"fmt"
	"strings"

	"cabline.dev/agent/booking/hooks"
	"cabline.dev/agent/features/calllog"
)

// Transcript payload mirrors. The recorder owns the stored JSON shapes; the
// transcript decodes only the fields a dispatcher-facing summary needs.
type (
	callStartedLine struct {
		CallerPhone string `json:"caller_phone"`
		CallerName  string `json:"caller_name"`
	}

	turnLine struct {
		StageAfter string `json:"stage_after"`
		Action     string `json:"action"`
		Prompt     string `json:"prompt"`
	}

	backendLine struct {
		Backend    string `json:"backend"`
		OK         bool   `json:"ok"`
		Superseded bool   `json:"superseded"`
	}

	bookingLine struct {
		BookingID           string `json:"booking_id"`
		Pickup              string `json:"pickup"`
		Destination         string `json:"destination"`
		Passengers          int    `json:"passengers"`
		PickupTime          string `json:"pickup_time"`
		SpecialInstructions string `json:"special_instructions"`
	}

	callEndedLine struct {
		Outcome   string `json:"outcome"`
		BookingID string `json:"booking_id"`
	}
)

// renderTranscript turns log entries into the plain-text call record fed to
// the model, one timestamped line per relevant entry.
func renderTranscript(entries []*calllog.Entry) (string, error) {
	var b strings.Builder
	for _, e := range entries {
		line, err := renderLine(e)
		if err != nil {
			return "", fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
		if line == "" {
			continue
		}
		b.WriteString(e.Timestamp.Format("15:04:05"))
		b.WriteByte(' ')
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func renderLine(e *calllog.Entry) (string, error) {
	switch e.Type {
	case hooks.CallStarted:
		var p callStartedLine
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return "", err
		}
		return callStartedText(p), nil
	case hooks.TurnProcessed:
		var p turnLine
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return "", err
		}
		return turnText(p), nil
	case hooks.BackendResolved:
		var p backendLine
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return "", err
		}
		return backendText(p), nil
	case hooks.BookingCreated, hooks.BookingAmended:
		var p bookingLine
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return "", err
		}
		verb := "created"
		if e.Type == hooks.BookingAmended {
			verb = "amended"
		}
		return bookingText(verb, p), nil
	case hooks.CallEnded:
		var p callEndedLine
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return "", err
		}
		return callEndedText(p), nil
	default:
		// Backend requests and unknown entry types carry nothing the
		// summary needs.
		return "", nil
	}
}

func callStartedText(p callStartedLine) string {
	switch {
	case p.CallerPhone != "" && p.CallerName != "":
		return fmt.Sprintf("call started from %s (%s)", p.CallerPhone, p.CallerName)
	case p.CallerPhone != "":
		return fmt.Sprintf("call started from %s", p.CallerPhone)
	default:
		return "call started"
	}
}

func turnText(p turnLine) string {
	var b strings.Builder
	b.WriteString("turn ")
	b.WriteString(p.StageAfter)
	b.WriteString(": ")
	b.WriteString(p.Action)
	if p.Prompt != "" {
		// Quote agent prompts so they read as speech in the transcript.
		fmt.Fprintf(&b, " %q", p.Prompt)
	}
	return b.String()
}

func backendText(p backendLine) string {
	status := "ok"
	if !p.OK {
		status = "failed"
	}
	if p.Superseded {
		status += " (superseded)"
	}
	return fmt.Sprintf("lookup %s %s", p.Backend, status)
}

func bookingText(verb string, p bookingLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "booking %s %s: pickup %s, destination %s, %d passenger", p.BookingID, verb, p.Pickup, p.Destination, p.Passengers)
	if p.Passengers != 1 {
		b.WriteByte('s')
	}
	b.WriteString(", ")
	b.WriteString(p.PickupTime)
	if p.SpecialInstructions != "" {
		b.WriteString(", note: ")
		b.WriteString(p.SpecialInstructions)
	}
	return b.String()
}

func callEndedText(p callEndedLine) string {
	if p.BookingID != "" {
		return fmt.Sprintf("call ended: %s (booking %s)", p.Outcome, p.BookingID)
	}
	return "call ended: " + p.Outcome
}
