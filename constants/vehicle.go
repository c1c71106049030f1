package constants

// Canonical vehicle shapes. Numbered units are rendered as "SAR-<n>".
const (
	VehiclePOV     = "POV"
	VehicleSARRig  = "SAR Rig"
	VehicleUnknown = "Unknown"
	SARUnitPrefix  = "SAR-"

	MinSARUnit = 1
	MaxSARUnit = 199
)

// ETAUnknown is the sentinel for a missing arrival time, both on the wire to
// the model and in eta_local.
const ETAUnknown = "Unknown"
