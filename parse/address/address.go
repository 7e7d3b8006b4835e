// Package address splits raw spoken UK addresses into their parts. The
// engine consults the split only to sharpen geocode-failure reprompts (a
// street-type address with no house number is asked for one); resolution
// itself always goes through the geocoder, so the splitter stays heuristic
// and never rejects input.
package address

import (
	"regexp"
	"strings"

	"cabline.dev/agent/booking/backends"
)

var (
	flatRe  = regexp.MustCompile(`(?i)^(flat|apartment|apt\.?|unit)\s+([0-9]+[a-z]?|[a-z])\b[,.]?\s*`)
	houseRe = regexp.MustCompile(`(?i)^(\d+[a-z]?(?:-\d+[a-z]?)?)\s+`)
)

// streetTypes are the trailing words that mark a street rather than a venue
// or landmark. Matching is on the last word of the street portion.
var streetTypes = map[string]struct{}{
	"street": {}, "st": {}, "road": {}, "rd": {}, "avenue": {}, "ave": {},
	"lane": {}, "ln": {}, "drive": {}, "dr": {}, "close": {}, "court": {},
	"crescent": {}, "way": {}, "place": {}, "pl": {}, "terrace": {},
	"gardens": {}, "grove": {}, "row": {}, "square": {}, "hill": {},
	"walk": {}, "mews": {}, "rise": {}, "view": {}, "parade": {},
	"broadway": {}, "boulevard": {}, "gate": {}, "vale": {}, "wharf": {},
	"embankment": {}, "quay": {}, "green": {},
}

// Parse decomposes one raw spoken address. It never fails; text that fits no
// pattern comes back with only StreetName set.
func Parse(text string) backends.AddressInfo {
	var info backends.AddressInfo

	s := strings.Join(strings.Fields(strings.TrimSpace(text)), " ")
	if s == "" {
		return info
	}

	// The flat or unit qualifier leads the address and may carry its own
	// comma ("Flat 3, 12 Acacia Road, London"), so it is peeled off before
	// the locality split.
	if m := flatRe.FindStringSubmatch(s); m != nil {
		info.FlatOrUnit = m[1] + " " + m[2]
		s = strings.TrimSpace(s[len(m[0]):])
	}

	// Locality trails the first comma: "12 High Street, Camden" and
	// "12 High Street, Camden, London" both put everything after the first
	// comma in TownOrArea.
	if i := strings.Index(s, ","); i >= 0 {
		info.TownOrArea = strings.TrimSpace(s[i+1:])
		s = strings.TrimSpace(s[:i])
	}

	if m := houseRe.FindStringSubmatch(s); m != nil {
		info.HouseNumber = strings.ToLower(m[1])
		info.HasHouseNumber = true
		s = strings.TrimSpace(s[len(m[0]):])
	}

	info.StreetName = s

	words := strings.Fields(strings.ToLower(s))
	if len(words) > 0 {
		last := strings.TrimRight(words[len(words)-1], ".")
		if _, ok := streetTypes[last]; ok {
			info.IsStreetType = true
		}
	}
	return info
}
