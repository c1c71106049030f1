package timeparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/responder-tracker/constants"
)

const (
	unitMinutes = `(?:minutes?|mins?|m)`
	unitHours   = `(?:hours?|hrs?|h)`
)

var (
	// 15-20 minutes, 1 to 2 hours
	reRange = regexp.MustCompile(`(?i)\b(\d{1,3}(?:\.\d+)?)\s*(?:-|–|to)\s*(\d{1,3}(?:\.\d+)?)\s*(` + unitMinutes + `|` + unitHours + `)\b`)
	// 1 hour 15 min, 2 hrs and 10 minutes
	reHoursAndMinutes = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:hours?|hrs?)\s*(?:and\s+)?(\d{1,2})\s*` + unitMinutes + `\b`)
	// 1h30
	reCompactHours = regexp.MustCompile(`(?i)\b(\d{1,2})h(\d{2})\b`)
	// an hour and a half, 2 and a half hours
	reHourAndHalf = regexp.MustCompile(`(?i)\b(?:an?|one|1)\s+hour\s+and\s+a\s+half\b`)
	reNAndHalf    = regexp.MustCompile(`(?i)\b(\d{1,2}|one|two|three|four)\s+and\s+a\s+half\s+hours?\b`)
	// an hour and ten, an hour and 10 min
	reHourAnd  = regexp.MustCompile(`(?i)\b(?:an?|one|1)\s+hour\s+and\s+(\d{1,2}|[a-z]+(?:[\s-][a-z]+)?)\b`)
	reHalfHour = regexp.MustCompile(`(?i)\bhalf\s+(?:an\s+)?hour\b`)
	reQuarter  = regexp.MustCompile(`(?i)\b(?:a\s+)?quarter\s+(?:of\s+an\s+)?hour\b`)
	reAnHour   = regexp.MustCompile(`(?i)\b(?:an|one)\s+hour\b`)
	// 1.5 hours, 2h, 3 hrs
	reHours = regexp.MustCompile(`(?i)\b(\d{1,3}(?:\.\d+)?)\s*` + unitHours + `\b`)
	// 45 min, 60min
	reMinutes = regexp.MustCompile(`(?i)\b(\d{1,4})\s*` + unitMinutes + `\b`)
	// twenty minutes, forty-five mins
	reWordMinutes = regexp.MustCompile(`(?i)\b([a-z]+(?:[\s-][a-z]+)?)\s+` + unitMinutes + `\b`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13,
	"fourteen": 14, "fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
	"a half": 30, "half": 30,
}

// ExtractDuration finds a duration expression and returns ref plus that
// duration, truncated to the minute. Ranges resolve to their upper bound.
// Durations above the clamps are rejected rather than resolved.
func ExtractDuration(text string, ref time.Time) (time.Time, bool) {
	minutes, ok := DurationMinutes(text)
	if !ok {
		return time.Time{}, false
	}
	return ref.Add(time.Duration(minutes * float64(time.Minute))).Truncate(time.Minute), true
}

// DurationMinutes returns the duration expressed in text, in minutes.
func DurationMinutes(text string) (float64, bool) {
	if m := reRange.FindStringSubmatch(text); m != nil {
		hi, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, false
		}
		if isHourUnit(m[3]) {
			return clampHours(hi)
		}
		return clampMinutes(hi)
	}
	if m := reHoursAndMinutes.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return clampMinutes(float64(h*60 + mins))
	}
	if m := reCompactHours.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		if mins > 59 {
			return 0, false
		}
		return clampMinutes(float64(h*60 + mins))
	}
	if reHourAndHalf.MatchString(text) {
		return 90, true
	}
	if m := reNAndHalf.FindStringSubmatch(text); m != nil {
		n, ok := parseCount(m[1])
		if !ok {
			return 0, false
		}
		return clampHours(float64(n) + 0.5)
	}
	if m := reHourAnd.FindStringSubmatch(text); m != nil {
		if n, ok := parseLeadingCount(m[1]); ok && n < 60 {
			return float64(60 + n), true
		}
	}
	if reHalfHour.MatchString(text) {
		return 30, true
	}
	if reQuarter.MatchString(text) {
		return 15, true
	}
	if m := reHours.FindStringSubmatch(text); m != nil {
		h, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return clampHours(h)
	}
	if m := reMinutes.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return clampMinutes(float64(n))
	}
	if reAnHour.MatchString(text) {
		return 60, true
	}
	for _, m := range reWordMinutes.FindAllStringSubmatch(text, -1) {
		if n, ok := parseTrailingCount(m[1]); ok {
			return clampMinutes(float64(n))
		}
	}
	return 0, false
}

func isHourUnit(unit string) bool {
	return strings.HasPrefix(strings.ToLower(unit), "h")
}

func clampMinutes(m float64) (float64, bool) {
	if m < 0 || m > constants.MaxDurationMinutes {
		return 0, false
	}
	return m, true
}

func clampHours(h float64) (float64, bool) {
	if h < 0 || h > constants.MaxDurationHours {
		return 0, false
	}
	return math.Round(h * 60), true
}

// parseCount reads "10", "ten", "forty five", "forty-five".
func parseCount(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '-' })
	if len(parts) != 2 {
		return 0, false
	}
	tens, ok1 := numberWords[parts[0]]
	ones, ok2 := numberWords[parts[1]]
	if !ok1 || !ok2 || tens < 20 || tens%10 != 0 || ones < 1 || ones > 9 {
		return 0, false
	}
	return tens + ones, true
}

// parseLeadingCount accepts "ten" out of "ten minutes".
func parseLeadingCount(s string) (int, bool) {
	if n, ok := parseCount(s); ok {
		return n, true
	}
	if f := strings.Fields(s); len(f) > 1 {
		return parseCount(f[0])
	}
	return 0, false
}

// parseTrailingCount accepts "ten" out of "eta ten".
func parseTrailingCount(s string) (int, bool) {
	if n, ok := parseCount(s); ok {
		return n, true
	}
	if f := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '-' }); len(f) > 1 {
		return parseCount(f[len(f)-1])
	}
	return 0, false
}
