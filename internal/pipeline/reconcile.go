package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/llm"
	"github.com/joseph-ayodele/responder-tracker/internal/rules"
	"github.com/joseph-ayodele/responder-tracker/internal/timeparse"
)

// zone-less layouts the model sometimes emits; read in the reference zone
var localISOLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// etaCandidate is one resolver's answer.
type etaCandidate struct {
	at     time.Time
	source constants.Source
	step   string
}

// resolveInput is what every ETA resolver may look at.
type resolveInput struct {
	req      Request
	proposal *llm.Proposal
	status   constants.Status
}

// etaResolver returns a candidate or false; the first success wins.
type etaResolver func(in resolveInput) (etaCandidate, bool)

// etaResolvers is the fixed resolution order.
var etaResolvers = []etaResolver{
	resolveRelativeUpdate,
	resolveModelISO,
	gated(resolveClockField),
	gated(resolveAbsolute),
	gated(resolveDuration),
	resolveCarryForward,
}

// Reconcile merges a model reply with the deterministic layers. It is a pure
// function of its inputs; trace may be nil.
func Reconcile(req Request, reply llm.Reply, trace *Trace) Result {
	if reply.Unavailable() {
		trace.note("model unavailable: all fields Unknown")
		return unknownResult()
	}
	p := reply.Proposal
	text := req.Text

	res := Result{
		Vehicle:      rules.NormalizeVehicle(p.Vehicle),
		Status:       rules.NormalizeStatus(p.Status),
		StatusSource: constants.SourceLanguageModel,
		ETASource:    constants.SourceLanguageModel,
		ETALocal:     constants.ETAUnknown,
		Confidence:   p.Confidence,
		Evidence:     p.Evidence,
	}

	// status overrides
	switch rules.ClassifyStandDown(text) {
	case rules.StandDownCode:
		res.Status, res.StatusSource = constants.StatusNotResponding, constants.SourceRule
		trace.note("status: stand-down code -> NotResponding")
	case rules.StandDownCancellation:
		res.Status, res.StatusSource = constants.StatusCancelled, constants.SourceRule
		trace.note("status: cancellation phrase -> Cancelled")
	default:
		if rules.LooksLikeIncidentCommandNote(text) && !rules.HasEtaIntent(text) {
			res.Status, res.StatusSource = constants.StatusInformational, constants.SourceRule
			trace.note("status: incident-command note without eta intent -> Informational")
			if rules.IsNumberedUnit(res.Vehicle) {
				trace.note(fmt.Sprintf("vehicle: %s stripped from informational note", res.Vehicle))
				res.Vehicle = constants.VehicleUnknown
			}
		}
	}

	if res.Status.Terminal() {
		res.Vehicle = constants.VehicleUnknown
		res.ETASource = constants.SourceRule
		trace.note(fmt.Sprintf("eta: cleared for %s", res.Status))
		return res
	}

	in := resolveInput{req: req, proposal: p, status: res.Status}
	cand, ok := firstCandidate(in)
	if ok {
		cand = guardWrappedHalfDay(req, cand, trace)
		trace.note(fmt.Sprintf("eta: %s via %s (%s)", cand.at.UTC().Format(constants.TimestampLayout), cand.step, cand.source))
		setETA(&res, cand.at, req.ReferenceTime)
		res.ETASource = cand.source
	} else {
		trace.note("eta: unresolved")
	}
	return res
}

func firstCandidate(in resolveInput) (etaCandidate, bool) {
	for _, r := range etaResolvers {
		if c, ok := r(in); ok {
			return c, true
		}
	}
	return etaCandidate{}, false
}

// resolveRelativeUpdate moves or holds the previous ETA ("+10", "same ETA").
// It runs before the model's timestamp: arithmetic against the stored ETA is
// exact, the model's is not.
func resolveRelativeUpdate(in resolveInput) (etaCandidate, bool) {
	if in.req.PreviousETA == nil {
		return etaCandidate{}, false
	}
	t, ok := timeparse.ExtractRelative(in.req.Text, *in.req.PreviousETA)
	if !ok {
		return etaCandidate{}, false
	}
	return etaCandidate{at: t, source: constants.SourceDeterministic, step: "relative update"}, true
}

// resolveModelISO adopts the model's timestamp only when it lies after the
// reference; a past value falls through to the deterministic readings.
func resolveModelISO(in resolveInput) (etaCandidate, bool) {
	t, ok := parseModelTimestamp(in.proposal.ETAISO, in.req.ReferenceTime.Location())
	if !ok || !t.After(in.req.ReferenceTime) {
		return etaCandidate{}, false
	}
	return etaCandidate{at: t, source: constants.SourceLanguageModel, step: "model timestamp"}, true
}

// gated applies the deterministic extractors only to text that talks about
// the responder's own arrival.
func gated(r etaResolver) etaResolver {
	return func(in resolveInput) (etaCandidate, bool) {
		text := in.req.Text
		if !rules.HasEtaIntent(text) && in.status != constants.StatusResponding {
			return etaCandidate{}, false
		}
		if rules.HasNonEtaTimeContext(text) {
			return etaCandidate{}, false
		}
		return r(in)
	}
}

func resolveClockField(in resolveInput) (etaCandidate, bool) {
	t, ok := timeparse.ParseClockField(in.proposal.ETAISO, in.req.ReferenceTime)
	if !ok {
		return etaCandidate{}, false
	}
	return etaCandidate{at: t, source: constants.SourceDeterministic, step: "model clock field"}, true
}

func resolveAbsolute(in resolveInput) (etaCandidate, bool) {
	t, ok := timeparse.ExtractAbsolute(in.req.Text, in.req.ReferenceTime)
	if !ok {
		return etaCandidate{}, false
	}
	return etaCandidate{at: t, source: constants.SourceDeterministic, step: "absolute time"}, true
}

func resolveDuration(in resolveInput) (etaCandidate, bool) {
	t, ok := timeparse.ExtractDuration(in.req.Text, in.req.ReferenceTime)
	if !ok {
		return etaCandidate{}, false
	}
	return etaCandidate{at: t, source: constants.SourceDeterministic, step: "duration"}, true
}

func resolveCarryForward(in resolveInput) (etaCandidate, bool) {
	if in.status != constants.StatusResponding || in.req.PreviousETA == nil {
		return etaCandidate{}, false
	}
	return etaCandidate{at: *in.req.PreviousETA, source: constants.SourceDeterministic, step: "previous eta carried forward"}, true
}

// guardWrappedHalfDay prefers the deterministic reading when an am/pm message
// produced an ETA well in the past, which means the arithmetic landed in the
// wrong half of the day.
func guardWrappedHalfDay(req Request, cand etaCandidate, trace *Trace) etaCandidate {
	if minutesBetween(req.ReferenceTime, cand.at) > constants.PastETAGuardMinutes {
		return cand
	}
	if !timeparse.HasMeridiem(req.Text) {
		return cand
	}
	t, ok := timeparse.ExtractAbsolute(req.Text, req.ReferenceTime)
	if !ok {
		return cand
	}
	trace.note(fmt.Sprintf("eta: past %s replaced by am/pm reading", cand.step))
	return etaCandidate{at: t, source: constants.SourceDeterministic, step: "am/pm guard"}
}

// parseModelTimestamp accepts RFC 3339 and zone-less ISO forms; "Unknown"
// and anything else yield false.
func parseModelTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, constants.ETAUnknown) {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range localISOLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// setETA fills every ETA field from one instant and the request's reference.
func setETA(res *Result, eta, ref time.Time) {
	utc := eta.UTC()
	mins := minutesBetween(ref, eta)
	res.ETATimestampUTC = &utc
	res.ETALocal = eta.In(ref.Location()).Format(constants.LocalClockLayout)
	res.MinutesUntilArrival = &mins
}

func minutesBetween(ref, eta time.Time) int {
	return int(math.Round(eta.Sub(ref).Minutes()))
}

func unknownResult() Result {
	return Result{
		Vehicle:      constants.VehicleUnknown,
		ETALocal:     constants.ETAUnknown,
		Status:       constants.StatusUnknown,
		StatusSource: constants.SourceLanguageModel,
		ETASource:    constants.SourceLanguageModel,
	}
}
