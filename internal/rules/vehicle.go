package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/responder-tracker/constants"
)

var (
	reSARUnit = regexp.MustCompile(`(?i)\bsar\s*[-_#]?\s*(\d+)\b`)
	rePOV     = regexp.MustCompile(`(?i)\b(?:pov|personal(?:\s+vehicle)?|private\s+vehicle|own\s+vehicle|my\s+(?:car|truck|jeep|suv|vehicle))\b`)
	reSARRig  = regexp.MustCompile(`(?i)\b(?:sar\s+(?:rig|truck|vehicle|unit)|rig|team\s+truck|county\s+(?:rig|truck))\b`)
)

// NormalizeVehicle canonicalizes a free-form vehicle mention into "POV",
// "SAR-<n>", "SAR Rig" or "Unknown". Unit numbers outside 1-199, and any
// value carrying a stand-down code, degrade to "Unknown".
func NormalizeVehicle(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, constants.VehicleUnknown) {
		return constants.VehicleUnknown
	}
	if ContainsStandDownCode(s) {
		return constants.VehicleUnknown
	}
	if m := reSARUnit.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < constants.MinSARUnit || n > constants.MaxSARUnit {
			return constants.VehicleUnknown
		}
		return constants.SARUnitPrefix + strconv.Itoa(n)
	}
	if rePOV.MatchString(s) {
		return constants.VehiclePOV
	}
	if reSARRig.MatchString(s) || strings.EqualFold(s, "sar") {
		return constants.VehicleSARRig
	}
	return constants.VehicleUnknown
}

// IsNumberedUnit reports whether a normalized vehicle is a SAR-<n> unit.
func IsNumberedUnit(vehicle string) bool {
	return strings.HasPrefix(vehicle, constants.SARUnitPrefix)
}
