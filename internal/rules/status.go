package rules

import "github.com/joseph-ayodele/responder-tracker/constants"

// NormalizeStatus maps the model's status label onto the enumeration;
// anything unrecognised becomes Unknown.
func NormalizeStatus(raw string) constants.Status {
	s, _ := constants.CanonicalizeStatus(raw)
	return s
}
