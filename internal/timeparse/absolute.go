package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// 7pm, 7:15 pm, 715pm, 7:15 p.m.
	reMeridiem = regexp.MustCompile(`(?i)\b(\d{1,2}):?(\d{2})?\s*([ap])\.?\s?m\b`)
	// 13:05, 7:15
	reColon = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	// 1430, 0915, 930
	reMilitary = regexp.MustCompile(`\b(\d{3,4})\b`)
	// standalone clock field as the model may emit it ("13:39", "1:39 PM")
	reClockField  = regexp.MustCompile(`(?i)^\s*\d{1,2}:\d{2}(\s*[ap]\.?\s?m\.?)?\s*$`)
	reHasMeridiem = regexp.MustCompile(`(?i)\d\s*[ap]\.?\s?m\b`)

	// units that turn a 3-4 digit number into a duration, not a clock time
	reDurationSuffix = regexp.MustCompile(`(?i)^\s*(?:minutes?|mins?|m\b|hours?|hrs?|h\b)`)
	reMilitarySuffix = regexp.MustCompile(`(?i)^\s*(?:hrs?|h|hours)\b`)
	// identifiers and codes that look like military time
	reMilitaryPrefix = regexp.MustCompile(`(?i)(?:sar|unit|rig|#|\$|\+|-|–|\d[-\s])\s*$`)
	// lower bound of a duration range ("100-120 min") or a street number ("1234 Main St")
	reMilitaryFollow = regexp.MustCompile(`^\s*[-–]\s*\d{1,4}\s*(?i:minutes?|mins?|m|hours?|hrs?|h)\b|^\s+(?:[A-Z][a-z]*\.?\s+){0,2}(?i:st|street|rd|road|ave|avenue|hwy|highway|blvd|ln|lane|dr|ct|pl)\b`)
)

// ExtractAbsolute finds the first absolute clock expression in text and
// resolves it to its next occurrence strictly after ref, in ref's location.
// Invalid hours or minutes never match.
func ExtractAbsolute(text string, ref time.Time) (time.Time, bool) {
	if t, ok := extractMeridiem(text, ref); ok {
		return t, true
	}
	if t, ok := extractColon(text, ref); ok {
		return t, true
	}
	return extractMilitary(text, ref)
}

// ParseClockField resolves a bare "HH:MM" (optionally am/pm) value such as a
// model-supplied ETA field that is not a full timestamp.
func ParseClockField(field string, ref time.Time) (time.Time, bool) {
	if !reClockField.MatchString(field) {
		return time.Time{}, false
	}
	return ExtractAbsolute(field, ref)
}

// HasMeridiem reports whether text carries an explicit am/pm marker.
func HasMeridiem(text string) bool {
	return reHasMeridiem.MatchString(text)
}

func extractMeridiem(text string, ref time.Time) (time.Time, bool) {
	for _, m := range reMeridiem.FindAllStringSubmatch(text, -1) {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour < 1 || hour > 12 {
			continue
		}
		minute := 0
		if m[2] != "" {
			minute, err = strconv.Atoi(m[2])
			if err != nil || minute > 59 {
				continue
			}
		}
		hour %= 12
		if strings.EqualFold(m[3], "p") {
			hour += 12
		}
		if t, ok := NextOccurrence(ref, hour, minute); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func extractColon(text string, ref time.Time) (time.Time, bool) {
	for _, m := range reColon.FindAllStringSubmatch(text, -1) {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			continue
		}
		if t, ok := resolveClock(ref, hour, minute, true); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func extractMilitary(text string, ref time.Time) (time.Time, bool) {
	for _, loc := range reMilitary.FindAllStringSubmatchIndex(text, -1) {
		digits := text[loc[2]:loc[3]]
		before, after := text[:loc[0]], text[loc[1]:]
		if reMilitaryPrefix.MatchString(before) || reMilitaryFollow.MatchString(after) {
			continue
		}
		if reDurationSuffix.MatchString(after) && !(len(digits) == 4 && reMilitarySuffix.MatchString(after)) {
			continue
		}
		if strings.HasPrefix(after, ":") || strings.HasPrefix(after, ".") {
			continue
		}
		n, _ := strconv.Atoi(digits)
		hour, minute := n/100, n%100
		if hour > 23 || minute > 59 {
			continue
		}
		// "130" is half past one in chat shorthand; "0130" and "1330" are 24h.
		ambiguous := len(digits) == 3
		if t, ok := resolveClock(ref, hour, minute, ambiguous); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// resolveClock picks the earliest future reading of hour:minute. Without an
// am/pm marker an hour of 1-12 may mean either half of the day.
func resolveClock(ref time.Time, hour, minute int, halfDayAmbiguous bool) (time.Time, bool) {
	best, ok := NextOccurrence(ref, hour, minute)
	if !halfDayAmbiguous || hour < 1 || hour > 12 {
		return best, ok
	}
	alt, altOK := NextOccurrence(ref, (hour+12)%24, minute)
	switch {
	case !ok:
		return alt, altOK
	case altOK && alt.Before(best):
		return alt, true
	}
	return best, ok
}

// NextOccurrence returns hour:minute on ref's day, or the following day when
// that is not strictly after ref. It never rolls more than one day.
func NextOccurrence(ref time.Time, hour, minute int) (time.Time, bool) {
	loc := ref.Location()
	t := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, loc)
	if t.After(ref) {
		return t, true
	}
	t = time.Date(ref.Year(), ref.Month(), ref.Day()+1, hour, minute, 0, 0, loc)
	if t.After(ref) {
		return t, true
	}
	return time.Time{}, false
}
