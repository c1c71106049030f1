package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/responder-tracker/constants"
)

const maxMessageChars = 2000

// BuildSystemPrompt composes the system message: output contract, vehicle and
// status vocabulary, time arithmetic rules, and the reference clock.
func BuildSystemPrompt(in PromptInput) string {
	parts := []string{
		"You interpret short status messages that search-and-rescue responders post in a team chat.",
		"Return ONLY JSON that matches the provided JSON Schema: vehicle, eta_iso, status, evidence, confidence.",

		// Vehicle vocabulary:
		"vehicle: 'POV' for a personal vehicle, 'SAR-<n>' for a numbered SAR unit (e.g. 'SAR7' -> 'SAR-7'), 'SAR Rig' for an unnumbered team vehicle, otherwise 'Unknown'.",

		// Status vocabulary:
		"status: exactly one of " + strings.Join(constants.StatusStrings(), ", ") + ".",
		"Responding = on the way or committed to come. Available = can come if needed but is not en route. " +
			"Cancelled = the responder backs out. NotResponding = stood down (codes '10-22' / '1022', 'stand down', mission cancelled). " +
			"Informational = logistics or command chatter that is not about this responder's own arrival.",
		"A bare '1022' right after 'ETA', 'at' or 'arriving' is the clock time 10:22, not a code.",

		// Time arithmetic:
		"eta_iso: the responder's own arrival time as an ISO-8601 UTC timestamp ending in 'Z', or 'Unknown'.",
		"Durations ('30 min', '1.5 hours', 'an hour and ten') are added to the current time. Ranges ('15-20 min') use the upper bound.",
		"Clock times ('1430', '2:30 pm', '7pm') mean their next occurrence after the current local time, never a time in the past.",
		"Times that describe something else (last seen, LKP, departed, briefing at) are not the responder's ETA.",
		"Updates such as '+10', '15 min late' or 'same ETA' are relative to the previous ETA when one is given.",
		"For NotResponding or Cancelled, vehicle and eta_iso must be 'Unknown'.",

		// Formatting hygiene:
		"evidence: the shortest quote from the message that supports the answer. confidence: a number from 0.0 to 1.0.",
		"Never output null. Use 'Unknown' for anything the message does not state.",
	}
	parts = append(parts, clockLines(in)...)
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the message text.
func BuildUserPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("Message:\n")
	b.WriteString(truncate(strings.TrimSpace(in.Text)))
	b.WriteString("\n")
	return b.String()
}

// BuildCorrectionPrompt restates a suspect interpretation and asks the model
// to reconsider duration-versus-clock ambiguity.
func BuildCorrectionPrompt(in CorrectionInput) string {
	var b strings.Builder
	b.WriteString(BuildUserPrompt(in.PromptInput))
	b.WriteString("\nA previous reading of this message was:\n")
	fmt.Fprintf(&b, "- vehicle: %s\n- status: %s\n", in.Original.Vehicle, in.Original.Status)
	if in.Original.ETA != nil {
		fmt.Fprintf(&b, "- eta_iso: %s (local %s)\n",
			in.Original.ETA.UTC().Format(constants.TimestampLayout),
			in.Original.ETA.In(in.ReferenceTime.Location()).Format(constants.LocalClockLayout))
	} else {
		b.WriteString("- eta_iso: Unknown\n")
	}
	if in.Original.MinutesUntilArrival != nil {
		fmt.Fprintf(&b, "- minutes until arrival: %d\n", *in.Original.MinutesUntilArrival)
	}
	if in.Peers.Count > 0 {
		fmt.Fprintf(&b, "\nOther active responders (%d) arrive in %.0f to %.0f minutes (median %.0f).\n",
			in.Peers.Count, in.Peers.Min, in.Peers.Max, in.Peers.Median)
	}
	if in.Reason != "" {
		b.WriteString("That reading was flagged as implausible: ")
		b.WriteString(in.Reason)
		b.WriteString(".\n")
	}
	b.WriteString("\nReconsider whether each number in the message is a duration from now or a clock time, " +
		"and whether a clock time belongs to the morning or the afternoon. " +
		"Return the corrected JSON only. If the original reading was right, return it unchanged.\n")
	return b.String()
}

// BuildLastResortPrompts is the compact final attempt: minimal instruction,
// inline schema, no structured-output mode.
func BuildLastResortPrompts(in PromptInput, schema map[string]any) (string, string) {
	sb, _ := json.Marshal(schema)
	system := "Return only valid JSON per this schema: " + string(sb) + " Use 'Unknown' when unsure."
	var b strings.Builder
	for _, l := range clockLines(in) {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(BuildUserPrompt(in))
	return system, b.String()
}

func clockLines(in PromptInput) []string {
	ref := in.ReferenceTime
	lines := []string{
		"Current time (UTC): " + ref.UTC().Format(constants.TimestampLayout) + ".",
		fmt.Sprintf("Current time (local, %s): %s.", ref.Location().String(), ref.Format("2006-01-02 15:04 MST")),
	}
	if in.PreviousETA != nil {
		lines = append(lines, fmt.Sprintf("Previous ETA for this responder: %s (local %s).",
			in.PreviousETA.UTC().Format(constants.TimestampLayout),
			in.PreviousETA.In(ref.Location()).Format(constants.LocalClockLayout)))
	} else {
		lines = append(lines, "Previous ETA for this responder: none.")
	}
	return lines
}

func truncate(s string) string {
	if len(s) <= maxMessageChars {
		return s
	}
	return s[:maxMessageChars] + "\n…(truncated)"
}
