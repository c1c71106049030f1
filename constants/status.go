package constants

import "strings"

// Status is the responder's commitment state.
type Status string

// Stable values (stored as-is in the interpretations table).
const (
	StatusResponding    Status = "Responding"
	StatusCancelled     Status = "Cancelled"
	StatusNotResponding Status = "NotResponding" // stood down by code or by command
	StatusAvailable     Status = "Available"     // available if needed, not en route
	StatusInformational Status = "Informational" // logistics / IC chatter
	StatusUnknown       Status = "Unknown"
)

var allStatuses = []Status{
	StatusResponding,
	StatusCancelled,
	StatusNotResponding,
	StatusAvailable,
	StatusInformational,
	StatusUnknown,
}

// StatusStrings returns the enumeration as plain strings (schema enum order).
func StatusStrings() []string {
	out := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		out[i] = string(s)
	}
	return out
}

// Terminal reports whether the status carries no vehicle and no ETA.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusNotResponding
}

// Active reports whether the responder counts toward the mission roster.
func (s Status) Active() bool {
	return s == StatusResponding || s == StatusAvailable
}

// CanonicalizeStatus maps free-form status labels onto the enumeration.
func CanonicalizeStatus(input string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return StatusUnknown, false
	}
	normalized = strings.NewReplacer("_", " ", "-", " ").Replace(normalized)

	synonyms := map[string]Status{
		"responding":     StatusResponding,
		"en route":       StatusResponding,
		"enroute":        StatusResponding,
		"cancelled":      StatusCancelled,
		"canceled":       StatusCancelled,
		"not responding": StatusNotResponding,
		"notresponding":  StatusNotResponding,
		"stood down":     StatusNotResponding,
		"stand down":     StatusNotResponding,
		"available":      StatusAvailable,
		"standby":        StatusAvailable,
		"on standby":     StatusAvailable,
		"informational":  StatusInformational,
		"info":           StatusInformational,
		"unknown":        StatusUnknown,
	}
	if s, ok := synonyms[normalized]; ok {
		return s, true
	}
	return StatusUnknown, false
}
