// Package uktime parses spoken UK pickup time phrases into concrete
// instants. The grammar is deliberately small and deterministic: ASAP
// synonyms, 24-hour clock times, am/pm times, "half past" and "quarter
// to/past" forms, relative "in N minutes", and a "tomorrow" prefix. A
// phrase outside the grammar parses to nil so the caller can reprompt
// instead of guessing.
package uktime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cabline.dev/agent/booking/backends"
)

// DefaultLocation is the IANA zone pickup times resolve against when Options
// does not supply one.
const DefaultLocation = "Europe/London"

type (
	// Options configures a Parser.
	Options struct {
		// Location is the zone wall-clock phrases resolve against. Defaults
		// to Europe/London.
		Location *time.Location
		// Now returns the current time. Defaults to time.Now. Tests inject a
		// fixed clock here.
		Now func() time.Time
	}

	// Parser resolves spoken time phrases against a clock and location.
	Parser struct {
		loc *time.Location
		now func() time.Time
	}
)

// New validates opts and constructs a Parser.
func New(opts Options) (*Parser, error) {
	loc := opts.Location
	if loc == nil {
		l, err := time.LoadLocation(DefaultLocation)
		if err != nil {
			return nil, fmt.Errorf("load location %s: %w", DefaultLocation, err)
		}
		loc = l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Parser{loc: loc, now: now}, nil
}

var asapPhrases = map[string]struct{}{
	"asap":                   {},
	"now":                    {},
	"right now":              {},
	"right away":             {},
	"straight away":          {},
	"immediately":            {},
	"as soon as possible":    {},
	"soon as possible":       {},
	"the soonest":            {},
	"as soon as you can":     {},
	"whenever the next cab":  {},
	"next available":         {},
	"the next available car": {},
}

var (
	relMinutesRe = regexp.MustCompile(`^in (\d{1,3}) min(?:ute)?s?$`)
	relHoursRe   = regexp.MustCompile(`^in (\d{1,2}) hours?$`)
	clockRe      = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})\s*(am|pm)?$`)
	bareHourRe   = regexp.MustCompile(`^(\d{1,2})\s*(am|pm)$`)
	oclockRe     = regexp.MustCompile(`^(\d{1,2}) o'?clock\s*(am|pm)?$`)
	halfPastRe   = regexp.MustCompile(`^half past (\d{1,2})\s*(am|pm)?$`)
	quarterRe    = regexp.MustCompile(`^(?:a )?quarter (past|to) (\d{1,2})\s*(am|pm)?$`)
)

// Parse resolves one spoken phrase. The result is nil when the phrase falls
// outside the grammar. Wall-clock times resolve to their next occurrence: a
// time already past today means the same time tomorrow.
func (p *Parser) Parse(text string) *backends.ParsedTime {
	s := clean(text)
	if s == "" {
		return nil
	}
	if _, ok := asapPhrases[s]; ok {
		return &backends.ParsedTime{Normalized: "ASAP", ASAP: true}
	}

	now := p.now().In(p.loc)

	if m := relMinutesRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return p.render(now.Add(time.Duration(n)*time.Minute), now)
	}
	if m := relHoursRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return p.render(now.Add(time.Duration(n)*time.Hour), now)
	}
	switch s {
	case "in an hour":
		return p.render(now.Add(time.Hour), now)
	case "in half an hour":
		return p.render(now.Add(30*time.Minute), now)
	}

	tomorrow := false
	if rest, ok := strings.CutPrefix(s, "tomorrow"); ok {
		tomorrow = true
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "at "))
		if s == "" {
			return nil
		}
	} else if rest, ok := strings.CutPrefix(s, "today"); ok {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "at "))
		if s == "" {
			return nil
		}
	}

	hour, minute, ok := timeOfDay(s)
	if !ok {
		return nil
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, p.loc)
	if tomorrow {
		at = at.AddDate(0, 0, 1)
	} else if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return p.render(at, now)
}

// timeOfDay parses a bare time-of-day phrase into a 24-hour clock reading.
func timeOfDay(s string) (hour, minute int, ok bool) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "at "))
	switch s {
	case "noon", "midday", "12 noon":
		return 12, 0, true
	case "midnight":
		return 0, 0, true
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		return applyMeridiem(h, min, m[3], false)
	}
	if m := bareHourRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		return applyMeridiem(h, 0, m[2], true)
	}
	if m := oclockRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		return applyMeridiem(h, 0, m[2], true)
	}
	if m := halfPastRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		return applyMeridiem(h, 30, m[2], true)
	}
	if m := quarterRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[2])
		h24, _, okm := applyMeridiem(h, 0, m[3], true)
		if !okm {
			return 0, 0, false
		}
		if m[1] == "past" {
			return h24, 15, true
		}
		return (h24 + 23) % 24, 45, true // "quarter to"
	}
	return 0, 0, false
}

// applyMeridiem converts an hour with optional am/pm into 24-hour form. A
// bare hour ("half past five", "5 o'clock") is ambiguous without a meridiem
// and parses to false; clock readings with explicit minutes ("17:30", "5:30")
// read as 24-hour time when no meridiem is given.
func applyMeridiem(h, min int, meridiem string, bare bool) (int, int, bool) {
	if min < 0 || min > 59 {
		return 0, 0, false
	}
	switch meridiem {
	case "am":
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if h == 12 {
			h = 0
		}
		return h, min, true
	case "pm":
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if h != 12 {
			h += 12
		}
		return h, min, true
	default:
		if bare || h > 23 {
			return 0, 0, false
		}
		return h, min, true
	}
}

// render produces the canonical normalized text for a resolved instant.
func (p *Parser) render(at, now time.Time) *backends.ParsedTime {
	utc := at.UTC()
	local := at.In(p.loc)

	day0 := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)

	var prefix string
	switch day.Sub(day0) {
	case 0:
		prefix = "today"
	case 24 * time.Hour:
		prefix = "tomorrow"
	default:
		prefix = local.Format("2006-01-02")
	}
	return &backends.ParsedTime{
		Normalized:  prefix + " " + local.Format("15:04"),
		AbsoluteUTC: &utc,
	}
}

var wordNumbers = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
	"eleven": "11", "twelve": "12", "fifteen": "15", "twenty": "20",
	"thirty": "30", "forty": "40", "fifty": "50",
}

// clean lowercases, collapses whitespace, trims filler around the phrase and
// rewrites spoken number words as digits ("half past five pm" parses the same
// as "half past 5 pm").
func clean(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimSuffix(s, ",")
	fields := strings.Fields(s)
	for i, f := range fields {
		if d, ok := wordNumbers[f]; ok {
			fields[i] = d
		}
	}
	s = strings.Join(fields, " ")
	s = strings.TrimSuffix(s, " please")
	s = strings.TrimPrefix(s, "for ")
	return strings.TrimSpace(s)
}
