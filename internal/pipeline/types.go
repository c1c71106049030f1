package pipeline

import (
	"time"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/llm"
)

// PeerETA is another active responder's current estimate.
type PeerETA struct {
	Name                string `json:"name"`
	MinutesUntilArrival int    `json:"minutes_until_arrival"`
}

// Request is one inbound message plus the caller-supplied context. The
// pipeline reads nothing else: no clock, no store.
type Request struct {
	Text          string     `json:"text"`
	ReferenceTime time.Time  `json:"reference_time"`
	PreviousETA   *time.Time `json:"previous_eta,omitempty"`
	PeerETAs      []PeerETA  `json:"peer_etas,omitempty"`
}

// Result is the reconciled interpretation with per-field provenance.
type Result struct {
	Vehicle             string           `json:"vehicle"`
	ETALocal            string           `json:"eta_local"`
	ETATimestampUTC     *time.Time       `json:"eta_timestamp_utc"`
	MinutesUntilArrival *int             `json:"minutes_until_arrival"`
	Status              constants.Status `json:"status"`
	StatusSource        constants.Source `json:"status_source"`
	ETASource           constants.Source `json:"eta_source"`
	Confidence          float64          `json:"confidence"`
	Evidence            string           `json:"evidence"`
	CorrectionApplied   bool             `json:"correction_applied"`
}

// HasETA reports whether an arrival time was resolved.
func (r Result) HasETA() bool {
	return r.ETATimestampUTC != nil
}

// Trace is the debug view of one interpretation: prompts, attempts and raw
// replies for both model calls, and the reconciliation decisions.
type Trace struct {
	Primary    llm.Reply      `json:"primary"`
	Correction *llm.Reply     `json:"correction,omitempty"`
	Decisions  []string       `json:"decisions"`
	Anomaly    *AnomalyReport `json:"anomaly,omitempty"`
}

// AnomalyReport explains a plausibility flag.
type AnomalyReport struct {
	Flagged   bool      `json:"flagged"`
	Reason    string    `json:"reason,omitempty"`
	Peers     PeerStats `json:"peers"`
	Corrected bool      `json:"corrected"`
}

func (t *Trace) note(msg string) {
	if t != nil {
		t.Decisions = append(t.Decisions, msg)
	}
}
