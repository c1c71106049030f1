package constants

import "time"

// Duration clamps for deterministic extraction. Anything larger is garbled input.
const (
	MaxDurationMinutes = 24 * 60
	MaxDurationHours   = 48
)

// Plausibility window for minutes-until-arrival and peer filtering.
const (
	AnomalyMinMinutes   = -120
	AnomalyMaxMinutes   = 1440
	AnomalyMinDeviation = 180
	AnomalyRangeFactor  = 3
	PeerStaleMinutes    = -30
	PastETAGuardMinutes = -5
)

// DefaultInterpretationTimeout bounds both model calls of one message.
const DefaultInterpretationTimeout = 90 * time.Second

// TimestampLayout is the boundary format for absolute timestamps (UTC, literal Z).
const TimestampLayout = "2006-01-02T15:04:05Z"

// LocalClockLayout renders eta_local.
const LocalClockLayout = "15:04"
