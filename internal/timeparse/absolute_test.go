package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdt = time.FixedZone("PDT", -7*3600)

// 2025-08-11 12:39:15 local
func refTime() time.Time {
	return time.Date(2025, 8, 11, 12, 39, 15, 0, pdt)
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 8, day, hour, minute, 0, 0, pdt)
}

func TestExtractAbsolute(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"pm later today", "be there 7pm", at(11, 19, 0)},
		{"am rolls to tomorrow", "ETA 7am", at(12, 7, 0)},
		{"minutes with meridiem", "arriving 7:15 p.m.", at(11, 19, 15)},
		{"compact meridiem", "715pm", at(11, 19, 15)},
		{"noon already passed", "12pm", at(12, 12, 0)},
		{"midnight", "12am", at(12, 0, 0)},
		{"24h colon", "ETA 13:05", at(11, 13, 5)},
		{"bare colon picks the afternoon", "ETA 7:15", at(11, 19, 15)},
		{"military later today", "ETA 1430", at(11, 14, 30)},
		{"military morning rolls over", "ETA 0915", at(12, 9, 15)},
		{"military with hrs suffix", "1430 hrs", at(11, 14, 30)},
		{"three digit military is ambiguous", "at 930", at(11, 21, 30)},
		{"bare 1022 after eta", "ETA 1022", at(12, 10, 22)},
		{"earlier time today wraps", "ETA 12:30", at(12, 0, 30)},
		{"highway after the time", "ETA 1430 via hwy 9", at(11, 14, 30)},
		{"clock window keeps its start", "ETA 1430-1500", at(11, 14, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractAbsolute(tt.text, refTime())
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
			assert.Equal(t, pdt, got.Location())
		})
	}
}

func TestExtractAbsoluteRejects(t *testing.T) {
	for _, text := range []string{
		"ETA 25:00",
		"ETA 12:75",
		"ETA 2400",
		"SAR 1022 rolling",
		"120 min out",
		"13pm",
		"no time here",
		"Responding from 1234 Main St, ETA 40 min",
		"Responding ETA 100-120 min",
		"staging at 455 Forest Rd",
	} {
		t.Run(text, func(t *testing.T) {
			_, ok := ExtractAbsolute(text, refTime())
			assert.False(t, ok)
		})
	}
}

func TestExtractAbsoluteAlwaysFuture(t *testing.T) {
	ref := refTime()
	for h := 1; h <= 12; h++ {
		for _, suffix := range []string{"am", "pm"} {
			text := time.Date(2000, 1, 1, h%12, 0, 0, 0, time.UTC).Format("3") + suffix
			got, ok := ExtractAbsolute(text, ref)
			require.True(t, ok, text)
			assert.True(t, got.After(ref), text)
			assert.LessOrEqual(t, got.Sub(ref), 24*time.Hour, text)
		}
	}
}

func TestParseClockField(t *testing.T) {
	got, ok := ParseClockField("13:39", refTime())
	require.True(t, ok)
	assert.True(t, at(11, 13, 39).Equal(got))

	got, ok = ParseClockField(" 1:39 PM ", refTime())
	require.True(t, ok)
	assert.True(t, at(11, 13, 39).Equal(got))

	_, ok = ParseClockField("2025-08-11T13:39:00Z", refTime())
	assert.False(t, ok)
	_, ok = ParseClockField("Unknown", refTime())
	assert.False(t, ok)
}

func TestHasMeridiem(t *testing.T) {
	assert.True(t, HasMeridiem("see you at 7 pm"))
	assert.True(t, HasMeridiem("7:15a.m."))
	assert.False(t, HasMeridiem("ETA 1915"))
	assert.False(t, HasMeridiem("pm me the coords"))
}

func TestNextOccurrence(t *testing.T) {
	ref := refTime()

	got, ok := NextOccurrence(ref, 12, 39)
	require.True(t, ok)
	assert.True(t, at(12, 12, 39).Equal(got), "same minute is not strictly after ref")

	got, ok = NextOccurrence(ref, 12, 40)
	require.True(t, ok)
	assert.True(t, at(11, 12, 40).Equal(got))
}
