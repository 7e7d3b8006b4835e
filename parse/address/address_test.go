package address

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cabline.dev/agent/booking/backends"
)

func TestParse(t *testing.T) {
	t.Parallel()

	type testCase struct {
		name string
		text string
		want backends.AddressInfo
	}
	cases := []testCase{
		{
			name: "number_street_town",
			text: "12 High Street, Camden",
			want: backends.AddressInfo{
				HouseNumber:    "12",
				StreetName:     "High Street",
				TownOrArea:     "Camden",
				IsStreetType:   true,
				HasHouseNumber: true,
			},
		},
		{
			name: "letter_suffix_number",
			text: "221b Baker Street, London",
			want: backends.AddressInfo{
				HouseNumber:    "221b",
				StreetName:     "Baker Street",
				TownOrArea:     "London",
				IsStreetType:   true,
				HasHouseNumber: true,
			},
		},
		{
			name: "flat_prefix_with_comma",
			text: "Flat 3, 12 Acacia Road, London",
			want: backends.AddressInfo{
				FlatOrUnit:     "Flat 3",
				HouseNumber:    "12",
				StreetName:     "Acacia Road",
				TownOrArea:     "London",
				IsStreetType:   true,
				HasHouseNumber: true,
			},
		},
		{
			name: "flat_without_comma",
			text: "Flat 4b 17 Mill Lane",
			want: backends.AddressInfo{
				FlatOrUnit:     "Flat 4b",
				HouseNumber:    "17",
				StreetName:     "Mill Lane",
				IsStreetType:   true,
				HasHouseNumber: true,
			},
		},
		{
			name: "street_without_number",
			text: "High Street, Guildford",
			want: backends.AddressInfo{
				StreetName:   "High Street",
				TownOrArea:   "Guildford",
				IsStreetType: true,
			},
		},
		{
			name: "venue_no_street_type",
			text: "The Red Lion, Esher",
			want: backends.AddressInfo{
				StreetName: "The Red Lion",
				TownOrArea: "Esher",
			},
		},
		{
			name: "landmark_plain",
			text: "Waterloo Station",
			want: backends.AddressInfo{
				StreetName: "Waterloo Station",
			},
		},
		{
			name: "range_number",
			text: "12-14 Station Road",
			want: backends.AddressInfo{
				HouseNumber:    "12-14",
				StreetName:     "Station Road",
				IsStreetType:   true,
				HasHouseNumber: true,
			},
		},
		{
			name: "multi_comma_locality",
			text: "9 Vale Grove, Acton, London",
			want: backends.AddressInfo{
				HouseNumber:    "9",
				StreetName:     "Vale Grove",
				TownOrArea:     "Acton, London",
				IsStreetType:   true,
				HasHouseNumber: true,
			},
		},
		{
			name: "whitespace_noise",
			text: "  34   Clarence   Avenue  ",
			want: backends.AddressInfo{
				HouseNumber:    "34",
				StreetName:     "Clarence Avenue",
				IsStreetType:   true,
				HasHouseNumber: true,
			},
		},
		{
			name: "empty",
			text: "   ",
			want: backends.AddressInfo{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, Parse(tc.text))
		})
	}
}

func TestParseUnitPrefix(t *testing.T) {
	t.Parallel()

	got := Parse("Unit 7, Riverside Industrial Estate, Kingston")
	assert.Equal(t, "Unit 7", got.FlatOrUnit)
	assert.Equal(t, "Riverside Industrial Estate", got.StreetName)
	assert.Equal(t, "Kingston", got.TownOrArea)
	assert.False(t, got.HasHouseNumber)
	assert.False(t, got.IsStreetType)
}
