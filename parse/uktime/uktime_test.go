package uktime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestParser fixes the clock at 2026-03-03 10:00 London time (GMT, so
// local wall time equals UTC).
func newTestParser(t *testing.T) *Parser {
	t.Helper()

	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	p, err := New(Options{
		Location: loc,
		Now:      func() time.Time { return time.Date(2026, 3, 3, 10, 0, 0, 0, loc) },
	})
	require.NoError(t, err)
	return p
}

func TestParseASAP(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	for _, phrase := range []string{
		"ASAP",
		"asap",
		"now",
		"Right away",
		"as soon as possible",
		"  straight away  ",
		"now please",
	} {
		got := p.Parse(phrase)
		require.NotNil(t, got, "phrase %q", phrase)
		assert.True(t, got.ASAP, "phrase %q", phrase)
		assert.Equal(t, "ASAP", got.Normalized, "phrase %q", phrase)
		assert.Nil(t, got.AbsoluteUTC, "phrase %q", phrase)
	}
}

func TestParseClockTimes(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)

	type testCase struct {
		phrase   string
		wantNorm string
		wantUTC  time.Time
	}
	cases := []testCase{
		{"17:30", "today 17:30", time.Date(2026, 3, 3, 17, 30, 0, 0, time.UTC)},
		{"at 17:30", "today 17:30", time.Date(2026, 3, 3, 17, 30, 0, 0, time.UTC)},
		{"09:15", "tomorrow 09:15", time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC)},
		{"5:30 pm", "today 17:30", time.Date(2026, 3, 3, 17, 30, 0, 0, time.UTC)},
		{"5.30pm", "today 17:30", time.Date(2026, 3, 3, 17, 30, 0, 0, time.UTC)},
		{"5pm", "today 17:00", time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)},
		{"five pm", "today 17:00", time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)},
		{"12 pm", "today 12:00", time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)},
		{"12 am", "tomorrow 00:00", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"8 o'clock pm", "today 20:00", time.Date(2026, 3, 3, 20, 0, 0, 0, time.UTC)},
		{"half past 5 pm", "today 17:30", time.Date(2026, 3, 3, 17, 30, 0, 0, time.UTC)},
		{"half past five pm", "today 17:30", time.Date(2026, 3, 3, 17, 30, 0, 0, time.UTC)},
		{"quarter past 8 pm", "today 20:15", time.Date(2026, 3, 3, 20, 15, 0, 0, time.UTC)},
		{"a quarter to 6 pm", "today 17:45", time.Date(2026, 3, 3, 17, 45, 0, 0, time.UTC)},
		{"quarter to 1 pm", "today 12:45", time.Date(2026, 3, 3, 12, 45, 0, 0, time.UTC)},
		{"noon", "today 12:00", time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)},
		{"midday", "today 12:00", time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)},
		{"midnight", "tomorrow 00:00", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"9am", "tomorrow 09:00", time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.phrase, func(t *testing.T) {
			t.Parallel()

			got := p.Parse(tc.phrase)
			require.NotNil(t, got)
			assert.False(t, got.ASAP)
			assert.Equal(t, tc.wantNorm, got.Normalized)
			require.NotNil(t, got.AbsoluteUTC)
			assert.True(t, got.AbsoluteUTC.Equal(tc.wantUTC), "got %v want %v", got.AbsoluteUTC, tc.wantUTC)
		})
	}
}

func TestParseRelative(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)

	type testCase struct {
		phrase  string
		wantUTC time.Time
	}
	cases := []testCase{
		{"in 20 minutes", time.Date(2026, 3, 3, 10, 20, 0, 0, time.UTC)},
		{"in 90 mins", time.Date(2026, 3, 3, 11, 30, 0, 0, time.UTC)},
		{"in 1 minute", time.Date(2026, 3, 3, 10, 1, 0, 0, time.UTC)},
		{"in 2 hours", time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)},
		{"in an hour", time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)},
		{"in one hour", time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)},
		{"in half an hour", time.Date(2026, 3, 3, 10, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.phrase, func(t *testing.T) {
			t.Parallel()

			got := p.Parse(tc.phrase)
			require.NotNil(t, got)
			require.NotNil(t, got.AbsoluteUTC)
			assert.True(t, got.AbsoluteUTC.Equal(tc.wantUTC), "got %v want %v", got.AbsoluteUTC, tc.wantUTC)
		})
	}
}

func TestParseTomorrow(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)

	got := p.Parse("tomorrow at 9 am")
	require.NotNil(t, got)
	assert.Equal(t, "tomorrow 09:00", got.Normalized)
	require.NotNil(t, got.AbsoluteUTC)
	assert.True(t, got.AbsoluteUTC.Equal(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)))

	got = p.Parse("tomorrow 17:30")
	require.NotNil(t, got)
	assert.Equal(t, "tomorrow 17:30", got.Normalized)

	// "tomorrow 5pm" stays tomorrow even though 17:00 today is still ahead.
	got = p.Parse("tomorrow 5pm")
	require.NotNil(t, got)
	assert.Equal(t, "tomorrow 17:00", got.Normalized)
}

func TestParseUnparseable(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	for _, phrase := range []string{
		"",
		"   ",
		"whenever",
		"5",           // bare hour, no meridiem
		"half past 5", // ambiguous without am/pm
		"25:00",
		"17:75",
		"13 pm",
		"tomorrow",
		"in minutes",
		"sometime this evening",
	} {
		assert.Nil(t, p.Parse(phrase), "phrase %q", phrase)
	}
}

func TestParseDSTOffset(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	p, err := New(Options{
		Location: loc,
		Now:      func() time.Time { return time.Date(2026, 7, 1, 10, 0, 0, 0, loc) },
	})
	require.NoError(t, err)

	// BST: 17:30 London wall time is 16:30 UTC.
	got := p.Parse("17:30")
	require.NotNil(t, got)
	assert.Equal(t, "today 17:30", got.Normalized)
	require.NotNil(t, got.AbsoluteUTC)
	assert.True(t, got.AbsoluteUTC.Equal(time.Date(2026, 7, 1, 16, 30, 0, 0, time.UTC)))
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	p, err := New(Options{})
	require.NoError(t, err)
	require.NotNil(t, p)

	got := p.Parse("asap")
	require.NotNil(t, got)
	assert.True(t, got.ASAP)
}
