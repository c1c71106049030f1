package timeparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// 10, 1.5, an (hour)
	shiftCount = `(\d{1,3}(?:\.\d+)?|an?|one)`
	// optional unit; minutes when absent
	shiftUnit = `(minutes?|mins?|m|hours?|hrs?|h)?`
)

var (
	reUnchanged = regexp.MustCompile(`(?i)\b(?:same\s+eta|eta\s+(?:is\s+)?(?:unchanged|the\s+same|same|still\s+good)|unchanged|no\s+change|still\s+on\s+(?:time|track|schedule)|same\s+time|as\s+before)\b`)
	rePlus      = regexp.MustCompile(`(?i)(?:^|\s)\+\s*` + shiftCount + `\s*` + shiftUnit + `\b`)
	reMinus     = regexp.MustCompile(`(?i)(?:^|\s)-\s*` + shiftCount + `\s*(minutes?|mins?|m|hours?|hrs?|h)\b`)
	reLateEarly = regexp.MustCompile(`(?i)\b` + shiftCount + `\s*` + shiftUnit + `\s*(late|later|behind|delayed|early|earlier|sooner|ahead)\b`)
	rePushed    = regexp.MustCompile(`(?i)\b(?:pushed|push|pushing|bumped|delayed|running\s+late)\s+(?:it\s+)?(?:back|out)?\s*(?:by\s+)?` + shiftCount + `\s*` + shiftUnit + `\b`)
	// "15 - 20 min" is a range, not a minus shift
	reRangeLead = regexp.MustCompile(`\d\s*$`)
)

// ExtractRelative interprets updates that move or hold a previously stated
// ETA ("+10", "15 min late", "pushed back an hour", "same ETA"). The result
// is anchored on prev, not on the reference time, and may lie in the past.
func ExtractRelative(text string, prev time.Time) (time.Time, bool) {
	if prev.IsZero() {
		return time.Time{}, false
	}
	if m := reLateEarly.FindStringSubmatch(text); m != nil {
		if n, ok := shiftMinutes(m[1], m[2]); ok {
			switch strings.ToLower(m[3]) {
			case "early", "earlier", "sooner", "ahead":
				return shift(prev, -n)
			default:
				return shift(prev, n)
			}
		}
	}
	if m := rePushed.FindStringSubmatch(text); m != nil {
		if n, ok := shiftMinutes(m[1], m[2]); ok {
			return shift(prev, n)
		}
	}
	if m := rePlus.FindStringSubmatch(text); m != nil {
		if n, ok := shiftMinutes(m[1], m[2]); ok {
			return shift(prev, n)
		}
	}
	if loc := reMinus.FindStringSubmatchIndex(text); loc != nil && !reRangeLead.MatchString(text[:loc[0]]) {
		if n, ok := shiftMinutes(text[loc[2]:loc[3]], text[loc[4]:loc[5]]); ok {
			return shift(prev, -n)
		}
	}
	if reUnchanged.MatchString(text) {
		return prev, true
	}
	return time.Time{}, false
}

// shiftMinutes converts a count and optional unit into minutes. Spelled
// counts ("an") need an explicit unit.
func shiftMinutes(count, unit string) (int, bool) {
	var n float64
	switch strings.ToLower(count) {
	case "a", "an", "one":
		if unit == "" {
			return 0, false
		}
		n = 1
	default:
		f, err := strconv.ParseFloat(count, 64)
		if err != nil {
			return 0, false
		}
		n = f
	}
	if unit != "" && isHourUnit(unit) {
		n *= 60
	}
	return int(math.Round(n)), true
}

func shift(prev time.Time, minutes int) (time.Time, bool) {
	if minutes > 24*60 || minutes < -24*60 {
		return time.Time{}, false
	}
	return prev.Add(time.Duration(minutes) * time.Minute).Truncate(time.Minute), true
}
