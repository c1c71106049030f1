package rules

import (
	"regexp"
	"strings"
)

// StandDownKind distinguishes an operational stand-down from a responder
// personally backing out.
type StandDownKind int

const (
	StandDownNone StandDownKind = iota
	// StandDownCode is a 10-22 style code or mission-level stand down.
	StandDownCode
	// StandDownCancellation is the responder cancelling ("can't make it").
	StandDownCancellation
)

var (
	// 10-22, 10 22, 10–22
	reSeparatedCode = regexp.MustCompile(`\b10\s?[-–\s]\s?22\b`)
	reBareCode      = regexp.MustCompile(`\b1022\b`)
	reStandDown     = regexp.MustCompile(`(?i)\b(?:stand(?:ing)?\s*down|stood\s+down|mission\s+(?:is\s+)?(?:cancel\w*|called\s+off|scrubbed)|subject\s+(?:found|located)|all\s+units\s+(?:clear|return))\b`)
	reCancellation  = regexp.MustCompile(`(?i)(?:\b(?:can[’']?t|cannot|can\s+not|won[’']?t\s+be\s+able\s+to|unable\s+to)\s+make\s+it\b|\bnot\s+(?:coming|going\s+to\s+make\s+it|able\s+to\s+respond)\b|\b(?:i[’']?m|i\s+am)\s+out\b|\bcancel(?:l?ing|l?ed)?\s+(?:my\s+)?(?:response|responding)\b|\bturning\s+(?:back|around)\b)`)

	// cues that mark a bare 1022 as the clock time 10:22
	reArrivalCueBefore  = regexp.MustCompile(`(?i)(?:\beta|\bat|@|\barriv\w*|\bby|\bbe\s+there)\W{0,3}$`)
	reArrivalCueAfter   = regexp.MustCompile(`(?i)^\W{0,3}(?:eta\b|arriv\w*|[ap]\.?m\b|hrs?\b)`)
	reColonClock        = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	reDurationUnitAfter = regexp.MustCompile(`(?i)^\s*(?:minutes?|mins?|m|hours?|hrs?|h)\b`)

	reEtaVerb = regexp.MustCompile(`(?i)\b(?:responding|en\s?route|on\s+my\s+way|omw|on\s+the\s+way|heading\s+(?:in|out|over|to)|arriving|arrive|be\s+there|eta|leaving\s+now|rolling)\b`)
	// 13:05, 1305, 7pm, 7:15am
	reClockToken = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\b|\b\d{3,4}\b|\b\d{1,2}\s*[ap]\.?\s?m\b`)
	// 15-20 min, 1 to 2 hours
	reTimeRange = regexp.MustCompile(`(?i)\b\d{1,3}\s*(?:-|–|to)\s*\d{1,3}\s*(?:minutes?|mins?|m|hours?|hrs?|h)\b`)
	// time describes something other than the responder's own arrival
	reNonEtaCue = regexp.MustCompile(`(?i)(?:\blast\s+seen|\blkp|\bdeparted|\bleft\s+(?:at|home\s+at)|\bseen\s+at|\bsince|\bstarted|\bbriefing\s+(?:at|is\s+at)|\bmeeting\s+at|\bsunset|\bsunrise|\bcheck\s?in\s+(?:at|by))\W{0,3}(?:\w+\W{1,3}){0,2}$`)
	reEtaCue    = regexp.MustCompile(`(?i)(?:\beta|\barriv\w*|\bbe\s+there|\bthere\s+(?:at|by)|\bon\s+scene)\W{0,3}(?:\w+\W{1,3}){0,1}$`)

	reIncidentCommand = regexp.MustCompile(`(?i)\b(?:ic|incident\s+command(?:er)?|ops\s+chief|operations\s+(?:chief|section)|plans\s+chief|planning\s+section|logistics|staging\s+(?:area|manager)|command\s+post|icp|base\s+camp|div(?:ision)?\s+[a-z]\b|team\s+leader|safety\s+officer|pio|briefing|debrief|radio\s+check|assignments?|tasking|sitrep)\b`)
)

// ClassifyStandDown reports whether text stands the responder down, and how.
// A bare "1022" counts as a code unless it sits next to an arrival cue or a
// colon clock time, where it most likely means 10:22. "10-22" followed by a
// duration unit is a range.
func ClassifyStandDown(text string) StandDownKind {
	if reStandDown.MatchString(text) {
		return StandDownCode
	}
	for _, loc := range reSeparatedCode.FindAllStringIndex(text, -1) {
		// "10-22 min" is a range
		if !reDurationUnitAfter.MatchString(text[loc[1]:]) {
			return StandDownCode
		}
	}
	for _, loc := range reBareCode.FindAllStringIndex(text, -1) {
		if !bareCodeIsClock(text, loc[0], loc[1]) {
			return StandDownCode
		}
	}
	if reCancellation.MatchString(text) {
		return StandDownCancellation
	}
	return StandDownNone
}

// IsStandDownCode reports whether text matches any stand-down or
// cancellation pattern.
func IsStandDownCode(text string) bool {
	return ClassifyStandDown(text) != StandDownNone
}

// ContainsStandDownCode matches only the numeric code, for vetting values such
// as a vehicle identifier ("SAR-1022").
func ContainsStandDownCode(s string) bool {
	return reSeparatedCode.MatchString(s) || strings.Contains(s, "1022")
}

func bareCodeIsClock(text string, start, end int) bool {
	before, after := text[:start], text[end:]
	if reArrivalCueBefore.MatchString(before) || reArrivalCueAfter.MatchString(after) {
		return true
	}
	// adjacent word is a clock time, e.g. "0950 - 1022" or "1022 (10:22)"
	return reColonClock.MatchString(lastWords(before, 2)) || reColonClock.MatchString(firstWords(after, 2))
}

// HasEtaIntent reports whether text says anything about the responder's own
// arrival: a response verb, a clock-like token not tied to a non-ETA cue, or
// an explicit time range.
func HasEtaIntent(text string) bool {
	if reEtaVerb.MatchString(text) || reTimeRange.MatchString(text) {
		return true
	}
	for _, loc := range reClockToken.FindAllStringIndex(text, -1) {
		if !reNonEtaCue.MatchString(text[:loc[0]]) {
			return true
		}
	}
	return false
}

// HasNonEtaTimeContext reports whether every clock-like token in text is
// tied to a non-arrival cue (LKP, last seen, departed, ...). Such text is not
// mined for an ETA deterministically.
func HasNonEtaTimeContext(text string) bool {
	locs := reClockToken.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return false
	}
	sawNonEta := false
	for _, loc := range locs {
		before := text[:loc[0]]
		if reEtaCue.MatchString(before) {
			return false
		}
		if reNonEtaCue.MatchString(before) {
			sawNonEta = true
		}
	}
	return sawNonEta
}

// LooksLikeIncidentCommandNote flags IC / logistics shorthand.
func LooksLikeIncidentCommandNote(text string) bool {
	return reIncidentCommand.MatchString(text)
}

func lastWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[len(f)-n:]
	}
	return strings.Join(f, " ")
}

func firstWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return strings.Join(f, " ")
}
