package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReply = `{"vehicle":"SAR-7","eta_iso":"Unknown","status":"Responding","evidence":"ETA 60min","confidence":0.9}`

type scriptedStep struct {
	resp ChatResponse
	err  error
}

// fakeTransport replays scripted steps and records every request.
type fakeTransport struct {
	mu    sync.Mutex
	steps []scriptedStep
	reqs  []ChatRequest
}

func (f *fakeTransport) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if err := ctx.Err(); err != nil {
		return ChatResponse{}, err
	}
	if len(f.steps) == 0 {
		return ChatResponse{}, errors.New("script exhausted")
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s.resp, s.err
}

func content(s string) scriptedStep {
	return scriptedStep{resp: ChatResponse{Content: s}}
}

func failure(err error) scriptedStep {
	return scriptedStep{err: err}
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) ObserveAttempt(_ Phase, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestAdapter(t *testing.T, tr ChatTransport, cfg AdapterConfig, opts ...Option) *Adapter {
	t.Helper()
	opts = append([]Option{WithSleep(noSleep)}, opts...)
	a, err := NewAdapter(tr, cfg, nil, opts...)
	require.NoError(t, err)
	return a
}

func testInput() PromptInput {
	return PromptInput{
		Text:          "Responding SAR7 ETA 60min",
		ReferenceTime: time.Date(2025, 8, 11, 12, 39, 15, 0, time.FixedZone("PDT", -7*3600)),
	}
}

func phases(r Reply) []Phase {
	out := make([]Phase, len(r.Attempts))
	for i, a := range r.Attempts {
		out[i] = a.Phase
	}
	return out
}

func TestAdapterFirstAttemptSucceeds(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{content(validReply)}}
	obs := &countingObserver{}
	a := newTestAdapter(t, tr, AdapterConfig{}, WithObserver(obs))

	reply := a.Propose(context.Background(), testInput())

	require.False(t, reply.Unavailable())
	assert.NoError(t, reply.Err)
	assert.Equal(t, "SAR-7", reply.Proposal.Vehicle)
	assert.Equal(t, "Responding", reply.Proposal.Status)
	require.Len(t, tr.reqs, 1)
	assert.NotNil(t, tr.reqs[0].Schema)
	assert.Equal(t, ProposalSchemaName, tr.reqs[0].SchemaName)
	assert.Equal(t, 600, tr.reqs[0].MaxTokens)
	assert.Contains(t, reply.UserPrompt, "Responding SAR7 ETA 60min")
	assert.Contains(t, reply.SystemPrompt, "Current time (UTC): 2025-08-11T19:39:15Z")
	assert.Equal(t, []string{"ok"}, obs.outcomes)
}

func TestAdapterGrowsTokensOnEmptyReply(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{
		{resp: ChatResponse{Content: "", Usage: Usage{CompletionTokens: 600}}},
		{resp: ChatResponse{Content: "  ", Usage: Usage{CompletionTokens: 1500}}},
		content(validReply),
	}}
	a := newTestAdapter(t, tr, AdapterConfig{Retry: RetryConfig{InitialMaxTokens: 600, MaxTokensCap: 2500}})

	reply := a.Propose(context.Background(), testInput())

	require.False(t, reply.Unavailable())
	require.Len(t, tr.reqs, 3)
	assert.Equal(t, 600, tr.reqs[0].MaxTokens)
	assert.Equal(t, 1200, tr.reqs[1].MaxTokens)
	assert.Equal(t, 2500, tr.reqs[2].MaxTokens, "growth is capped")
	assert.Equal(t, "empty", reply.Attempts[0].Outcome)
	assert.Equal(t, "ok", reply.Attempts[2].Outcome)
}

func TestAdapterFallsBackToFreeform(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{
		failure(ErrStructuredOutputUnsupported),
		content("Here you go:\n" + validReply),
	}}
	a := newTestAdapter(t, tr, AdapterConfig{})

	reply := a.Propose(context.Background(), testInput())

	require.False(t, reply.Unavailable())
	assert.Equal(t, []Phase{PhaseStructured, PhaseFreeform}, phases(reply))
	assert.Nil(t, tr.reqs[1].Schema)
	assert.Equal(t, "structured_rejected", reply.Attempts[0].Outcome)
}

func TestAdapterResponseFormatRefusalCountsAsStructuredRejection(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{
		failure(&UnsupportedParamError{Param: ParamResponseFormat, Message: "nope"}),
		content(validReply),
	}}
	a := newTestAdapter(t, tr, AdapterConfig{})

	reply := a.Propose(context.Background(), testInput())

	require.False(t, reply.Unavailable())
	assert.Equal(t, []Phase{PhaseStructured, PhaseFreeform}, phases(reply))
}

func TestAdapterDropsRefusedParameter(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{
		failure(&UnsupportedParamError{Param: ParamTemperature, Message: "only default supported"}),
		failure(&UnsupportedParamError{Param: ParamMaxTokens, Message: "use max_completion_tokens"}),
		content(validReply),
	}}
	cfg := AdapterConfig{
		Retry:  RetryConfig{MaxAttempts: 1},
		Params: map[string]any{ParamTemperature: 0.1},
	}
	a := newTestAdapter(t, tr, cfg)

	reply := a.Propose(context.Background(), testInput())

	require.False(t, reply.Unavailable(), "refusals must not consume the single attempt")
	require.Len(t, tr.reqs, 3)
	assert.Contains(t, tr.reqs[0].Params, ParamTemperature)
	assert.NotContains(t, tr.reqs[1].Params, ParamTemperature)
	assert.Equal(t, 600, tr.reqs[1].MaxTokens)
	assert.Equal(t, 0, tr.reqs[2].MaxTokens)
	assert.Equal(t, []Phase{PhaseStructured, PhaseStructured, PhaseStructured}, phases(reply))
	assert.Equal(t, "unsupported_param", reply.Attempts[0].Outcome)
}

func TestAdapterRepeatedRefusalConsumesAttempt(t *testing.T) {
	refusal := failure(&UnsupportedParamError{Param: ParamTemperature})
	tr := &fakeTransport{steps: []scriptedStep{refusal, refusal, refusal, refusal}}
	cfg := AdapterConfig{
		Retry:  RetryConfig{MaxAttempts: 2},
		Params: map[string]any{ParamTemperature: 0.1},
	}
	a := newTestAdapter(t, tr, cfg)

	reply := a.Propose(context.Background(), testInput())

	assert.True(t, reply.Unavailable())
	// 1 free refusal + 2 counted + 1 last resort
	assert.Len(t, tr.reqs, 4)
}

func TestAdapterLastResort(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{
		content("I think they are coming"),
		content(`{"vehicle":"SAR-7"}`),
		failure(errors.New("502 bad gateway")),
		content(validReply),
	}}
	a := newTestAdapter(t, tr, AdapterConfig{Retry: RetryConfig{MaxTokensCap: 3000}})

	reply := a.Propose(context.Background(), testInput())

	require.False(t, reply.Unavailable())
	assert.Equal(t, []Phase{PhaseStructured, PhaseStructured, PhaseStructured, PhaseLastResort}, phases(reply))
	last := tr.reqs[3]
	assert.Nil(t, last.Schema)
	assert.Equal(t, 3000, last.MaxTokens)
	assert.Contains(t, last.System, "Return only valid JSON per this schema")
	assert.Equal(t, []string{"malformed", "malformed", "error", "ok"}, []string{
		reply.Attempts[0].Outcome, reply.Attempts[1].Outcome, reply.Attempts[2].Outcome, reply.Attempts[3].Outcome,
	})
}

func TestAdapterUnavailableAfterEveryPhase(t *testing.T) {
	tr := &fakeTransport{}
	a := newTestAdapter(t, tr, AdapterConfig{})

	reply := a.Propose(context.Background(), testInput())

	assert.True(t, reply.Unavailable())
	assert.ErrorIs(t, reply.Err, ErrUnavailable)
	assert.Len(t, tr.reqs, 4)
}

func TestAdapterStopsOnCancelledContext(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{content(validReply)}}
	a := newTestAdapter(t, tr, AdapterConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reply := a.Propose(ctx, testInput())

	assert.True(t, reply.Unavailable())
	assert.ErrorIs(t, reply.Err, ErrUnavailable)
	assert.ErrorIs(t, reply.Err, context.Canceled)
	assert.Len(t, tr.reqs, 1)
}

func TestAdapterWithoutTransport(t *testing.T) {
	a := newTestAdapter(t, nil, AdapterConfig{})

	reply := a.Propose(context.Background(), testInput())

	assert.True(t, reply.Unavailable())
	assert.ErrorIs(t, reply.Err, ErrNoClient)
	assert.Empty(t, reply.Attempts)
	assert.NotEmpty(t, reply.SystemPrompt)
}

func TestAdapterLenientSanitize(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{
		content("```json\n{\"vehicle\":\"SAR7\",\"eta\":\"Unknown\",\"status\":\"responding\",\"evidence\":\"omw\",\"confidence\":\"85%\",\"notes\":\"x\"}\n```"),
	}}
	a := newTestAdapter(t, tr, AdapterConfig{})

	reply := a.Propose(context.Background(), testInput())

	require.False(t, reply.Unavailable())
	assert.Equal(t, "Responding", reply.Proposal.Status)
	assert.InDelta(t, 0.85, reply.Proposal.Confidence, 1e-9)
	assert.Contains(t, reply.Dropped, "notes(unknown)")
	assert.Len(t, tr.reqs, 1)
}

func TestAdapterCorrect(t *testing.T) {
	tr := &fakeTransport{steps: []scriptedStep{content(validReply)}}
	a := newTestAdapter(t, tr, AdapterConfig{})

	eta := time.Date(2025, 8, 12, 3, 39, 0, 0, time.UTC)
	mins := 900
	reply := a.Correct(context.Background(), CorrectionInput{
		PromptInput: testInput(),
		Original:    SuspectInterpretation{Vehicle: "SAR-7", Status: "Responding", ETA: &eta, MinutesUntilArrival: &mins},
		Peers:       PeerSummary{Count: 3, Median: 25, Min: 20, Max: 30},
		Reason:      "900 minutes is far from the peer median",
	})

	require.False(t, reply.Unavailable())
	assert.Contains(t, reply.UserPrompt, "minutes until arrival: 900")
	assert.Contains(t, reply.UserPrompt, "Other active responders (3) arrive in 20 to 30 minutes (median 25)")
	assert.Contains(t, reply.UserPrompt, "flagged as implausible")
}
