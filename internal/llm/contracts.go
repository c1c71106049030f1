package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ChatRequest is one chat-completion call. A nil Schema means free-form mode.
type ChatRequest struct {
	System     string
	User       string
	Schema     map[string]any
	SchemaName string
	MaxTokens  int            // 0 = let the backend decide
	Params     map[string]any // optional sampling knobs (temperature, ...)
}

// Usage is the backend's token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// ChatTransport is the external text-understanding service.
type ChatTransport interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

var (
	// ErrNoClient means no transport is configured.
	ErrNoClient = errors.New("llm: no client configured")
	// ErrStructuredOutputUnsupported means the backend rejected schema-constrained output.
	ErrStructuredOutputUnsupported = errors.New("llm: structured output unsupported")
	ErrEmptyReply                  = errors.New("llm: empty reply")
	ErrMalformedReply              = errors.New("llm: malformed reply")
	// ErrUnavailable wraps the last failure once every attempt is spent.
	ErrUnavailable = errors.New("llm: unavailable")
)

// UnsupportedParamError reports a request parameter the backend refuses.
type UnsupportedParamError struct {
	Param   string
	Message string
}

func (e *UnsupportedParamError) Error() string {
	return fmt.Sprintf("llm: unsupported parameter %q: %s", e.Param, e.Message)
}

// Proposal is the model's structured reply. It is never final; the
// reconciliation engine decides every field.
type Proposal struct {
	Vehicle    string  `json:"vehicle"`
	ETAISO     string  `json:"eta_iso"` // ISO-8601 or "Unknown"
	Status     string  `json:"status"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
}

// Phase names a stage of the retry state machine.
type Phase string

const (
	PhaseStructured Phase = "structured"
	PhaseFreeform   Phase = "freeform"
	PhaseLastResort Phase = "last_resort"
)

// Attempt records one call to the transport.
type Attempt struct {
	Number           int    `json:"number"`
	Phase            Phase  `json:"phase"`
	MaxTokens        int    `json:"max_tokens"`
	Outcome          string `json:"outcome"` // ok, empty, malformed, unsupported_param, structured_rejected, error
	Error            string `json:"error,omitempty"`
	LatencyMs        int64  `json:"latency_ms"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

// Reply is the adapter's answer. A nil Proposal is the unavailable variant,
// distinct from a valid proposal that says "Unknown".
type Reply struct {
	Proposal     *Proposal `json:"proposal,omitempty"`
	Err          error     `json:"-"`
	Raw          string    `json:"raw,omitempty"`
	SystemPrompt string    `json:"system_prompt"`
	UserPrompt   string    `json:"user_prompt"`
	Attempts     []Attempt `json:"attempts"`
	Dropped      []string  `json:"dropped,omitempty"`
}

// Unavailable reports whether the model produced no usable proposal.
func (r Reply) Unavailable() bool {
	return r.Proposal == nil
}

// PromptInput is what the primary request tells the model.
type PromptInput struct {
	Text          string
	ReferenceTime time.Time // carries the deployment's local zone
	PreviousETA   *time.Time
}

// SuspectInterpretation is the reconciled result the anomaly detector doubts.
type SuspectInterpretation struct {
	Vehicle             string
	Status              string
	ETA                 *time.Time
	MinutesUntilArrival *int
}

// PeerSummary describes other active responders' minutes-until-arrival.
type PeerSummary struct {
	Count  int
	Median float64
	Min    float64
	Max    float64
}

// CorrectionInput asks the model to reconsider a flagged interpretation.
type CorrectionInput struct {
	PromptInput
	Original SuspectInterpretation
	Peers    PeerSummary
	Reason   string
}
