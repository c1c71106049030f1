package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/llm"
)

// PeerStats summarizes peers' minutes-until-arrival.
type PeerStats struct {
	Count  int     `json:"count"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// SummarizePeers ignores peers whose ETA is more than 30 minutes past.
func SummarizePeers(peers []PeerETA) PeerStats {
	vals := make([]float64, 0, len(peers))
	for _, p := range peers {
		if p.MinutesUntilArrival < constants.PeerStaleMinutes {
			continue
		}
		vals = append(vals, float64(p.MinutesUntilArrival))
	}
	if len(vals) == 0 {
		return PeerStats{}
	}
	sort.Float64s(vals)
	n := len(vals)
	median := vals[n/2]
	if n%2 == 0 {
		median = (vals[n/2-1] + vals[n/2]) / 2
	}
	return PeerStats{Count: n, Median: median, Min: vals[0], Max: vals[n-1]}
}

// CheckAnomaly flags minutes outside the absolute bounds, or too far from the
// peer median. The reason is empty when the value is plausible.
func CheckAnomaly(minutes int, peers PeerStats) (bool, string) {
	if minutes < constants.AnomalyMinMinutes || minutes > constants.AnomalyMaxMinutes {
		return true, fmt.Sprintf("%d minutes until arrival is outside [%d, %d]",
			minutes, constants.AnomalyMinMinutes, constants.AnomalyMaxMinutes)
	}
	if peers.Count == 0 {
		return false, ""
	}
	limit := math.Max(constants.AnomalyMinDeviation, constants.AnomalyRangeFactor*(peers.Max-peers.Min))
	if dev := math.Abs(float64(minutes) - peers.Median); dev > limit {
		return true, fmt.Sprintf("%d minutes is %.0f minutes from the peer median %.0f (limit %.0f)",
			minutes, dev, peers.Median, limit)
	}
	return false, ""
}

// anomalyCorrector reviews a reconciled result against peers and asks the
// model once to reconsider an implausible ETA.
type anomalyCorrector struct {
	proposer Proposer
	logger   *slog.Logger
}

// review returns the result to report and what it found.
func (c *anomalyCorrector) review(ctx context.Context, req Request, res Result, trace *Trace) (Result, *AnomalyReport) {
	if !res.Status.Active() || !res.HasETA() {
		return res, nil
	}
	peers := SummarizePeers(req.PeerETAs)
	flagged, reason := CheckAnomaly(*res.MinutesUntilArrival, peers)
	report := &AnomalyReport{Flagged: flagged, Reason: reason, Peers: peers}
	if !flagged {
		return res, report
	}

	c.logger.Warn("pipeline.anomaly.flagged",
		"minutes_until_arrival", *res.MinutesUntilArrival,
		"peer_count", peers.Count, "peer_median", peers.Median, "reason", reason,
	)

	correction := c.proposer.Correct(ctx, llm.CorrectionInput{
		PromptInput: promptInput(req),
		Original: llm.SuspectInterpretation{
			Vehicle:             res.Vehicle,
			Status:              string(res.Status),
			ETA:                 res.ETATimestampUTC,
			MinutesUntilArrival: res.MinutesUntilArrival,
		},
		Peers:  llm.PeerSummary{Count: peers.Count, Median: peers.Median, Min: peers.Min, Max: peers.Max},
		Reason: reason,
	})
	if trace != nil {
		trace.Correction = &correction
	}
	if correction.Unavailable() {
		c.logger.Warn("pipeline.anomaly.correction_unavailable", "error", correction.Err)
		trace.note("anomaly: correction unavailable, original kept")
		return res, report
	}

	candidate := Reconcile(req, correction, nil)
	if !candidate.HasETA() {
		trace.note("anomaly: correction produced no eta, original kept")
		return res, report
	}
	if still, why := CheckAnomaly(*candidate.MinutesUntilArrival, peers); still {
		c.logger.Info("pipeline.anomaly.correction_rejected", "minutes_until_arrival", *candidate.MinutesUntilArrival, "reason", why)
		trace.note("anomaly: correction still implausible, original kept")
		return res, report
	}

	corrected := res
	corrected.ETATimestampUTC = candidate.ETATimestampUTC
	corrected.ETALocal = candidate.ETALocal
	corrected.MinutesUntilArrival = candidate.MinutesUntilArrival
	corrected.ETASource = constants.SourceLanguageModelCorrected
	corrected.Confidence = candidate.Confidence
	corrected.Evidence = candidate.Evidence
	corrected.CorrectionApplied = true
	report.Corrected = true

	c.logger.Info("pipeline.anomaly.corrected",
		"from_minutes", *res.MinutesUntilArrival, "to_minutes", *candidate.MinutesUntilArrival,
	)
	trace.note(fmt.Sprintf("anomaly: corrected to %s", corrected.ETALocal))
	return corrected, report
}
