package engine

import (
	"strings"

	"cabline.dev/agent/booking/backends"
	"cabline.dev/agent/booking/events"
)

// Patch is the diff between one tool sync and the stored slots. Only fields
// that actually changed are flagged.
type Patch struct {
	Intent events.Intent

	PickupChanged bool
	PickupRaw     string

	DropoffChanged bool
	DropoffRaw     string

	PassengersChanged bool
	Passengers        int

	TimeChanged bool
	Time        backends.ParsedTime

	InstructionsChanged bool
	Instructions        string
}

// HasSlotChanges reports whether the patch touches any booking slot.
// Non-empty special instructions always count as a change.
func (p Patch) HasSlotChanges() bool {
	return p.PickupChanged || p.DropoffChanged || p.PassengersChanged ||
		p.TimeChanged || p.InstructionsChanged
}

// buildPatch diffs a tool sync against the stored slots. Text fields change
// only when non-empty and case-insensitively different from the stored raw
// value. Passenger counts outside 1..8 and unparseable time phrases are
// dropped, leaving the slot untouched.
func buildPatch(tool events.ToolSync, slots Slots, parseTime backends.TimeParser) Patch {
	p := Patch{Intent: events.ParseIntent(tool.Intent)}

	if changedText(tool.Pickup, slots.Pickup.Raw) {
		p.PickupChanged = true
		p.PickupRaw = strings.TrimSpace(tool.Pickup)
	}
	if changedText(tool.Destination, slots.Dropoff.Raw) {
		p.DropoffChanged = true
		p.DropoffRaw = strings.TrimSpace(tool.Destination)
	}
	if tool.Passengers != 0 && tool.Passengers != slots.Passengers &&
		tool.Passengers >= 1 && tool.Passengers <= 8 {
		p.PassengersChanged = true
		p.Passengers = tool.Passengers
	}
	var storedTime string
	if slots.PickupTime != nil {
		storedTime = slots.PickupTime.Raw
	}
	if changedText(tool.PickupTime, storedTime) {
		if parsed := parseTime(tool.PickupTime); parsed != nil {
			p.TimeChanged = true
			p.Time = *parsed
		}
	}
	if instr := strings.TrimSpace(tool.SpecialInstructions); instr != "" {
		p.InstructionsChanged = true
		p.Instructions = instr
	}
	return p
}

// apply mutates the slots per the patch. Replacing an address resets its
// verification and verify counter so the new value is geocoded afresh.
func (st *State) apply(p Patch) {
	if p.PickupChanged {
		st.Slots.Pickup = AddressSlot{Raw: p.PickupRaw}
		st.Retries.reset(RetryPickupVerify)
	}
	if p.DropoffChanged {
		st.Slots.Dropoff = AddressSlot{Raw: p.DropoffRaw}
		st.Retries.reset(RetryDropoffVerify)
	}
	if p.PassengersChanged {
		st.Slots.Passengers = p.Passengers
	}
	if p.TimeChanged {
		pt := PickupTime{Raw: p.Time.Normalized, ASAP: p.Time.ASAP}
		if p.Time.AbsoluteUTC != nil {
			t := p.Time.AbsoluteUTC.UTC()
			pt.Absolute = &t
		}
		st.Slots.PickupTime = &pt
	}
	if p.InstructionsChanged {
		st.Slots.SpecialInstructions = p.Instructions
	}
}

// changedText reports whether val is non-empty and differs from stored,
// ignoring case and surrounding whitespace.
func changedText(val, stored string) bool {
	v := strings.TrimSpace(val)
	if v == "" {
		return false
	}
	return !strings.EqualFold(v, stored)
}
