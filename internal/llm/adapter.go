package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request parameter names the adapter may strip after a backend refusal.
const (
	ParamTemperature    = "temperature"
	ParamMaxTokens      = "max_tokens"
	ParamResponseFormat = "response_format"
)

// AttemptObserver is notified after every transport call (metrics hook).
type AttemptObserver interface {
	ObserveAttempt(phase Phase, outcome string, elapsed time.Duration)
}

// AdapterConfig configures the Language-Model Adapter.
type AdapterConfig struct {
	Retry RetryConfig
	// Params are optional knobs sent on every request until the backend refuses them.
	Params map[string]any
}

// Adapter turns a message into a Proposal through a ChatTransport, retrying
// empty replies, refused parameters and unsupported structured output.
type Adapter struct {
	transport ChatTransport
	cfg       RetryConfig
	params    map[string]any
	schema    map[string]any
	compiled  *jsonschema.Schema
	logger    *slog.Logger
	observer  AttemptObserver
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Adapter)

// WithObserver attaches an attempt observer.
func WithObserver(o AttemptObserver) Option {
	return func(a *Adapter) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithSleep replaces the inter-attempt wait (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Adapter) {
		if fn != nil {
			a.sleep = fn
		}
	}
}

// NewAdapter builds an adapter. A nil transport is allowed: every call then
// returns the unavailable reply with ErrNoClient.
func NewAdapter(transport ChatTransport, cfg AdapterConfig, logger *slog.Logger, opts ...Option) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema := BuildProposalJSONSchema()
	compiled, err := CompileSchema(schema)
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		transport: transport,
		cfg:       cfg.Retry.withDefaults(),
		params:    cfg.Params,
		schema:    schema,
		compiled:  compiled,
		logger:    logger,
		sleep:     sleepCtx,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Propose runs the primary interpretation request.
func (a *Adapter) Propose(ctx context.Context, in PromptInput) Reply {
	return a.run(ctx, in, BuildSystemPrompt(in), BuildUserPrompt(in))
}

// Correct runs the anomaly correction request.
func (a *Adapter) Correct(ctx context.Context, in CorrectionInput) Reply {
	return a.run(ctx, in.PromptInput, BuildSystemPrompt(in.PromptInput), BuildCorrectionPrompt(in))
}

func (a *Adapter) run(ctx context.Context, in PromptInput, system, user string) Reply {
	rid := uuid.New().String()
	start := time.Now()
	reply := Reply{SystemPrompt: system, UserPrompt: user}

	if a.transport == nil {
		reply.Err = fmt.Errorf("%w: %w", ErrUnavailable, ErrNoClient)
		a.logger.Warn("llm.adapter.no_client", "req_id", rid)
		return reply
	}

	a.logger.Info("llm.adapter.start", "req_id", rid, "text_len", len(in.Text), "has_previous_eta", in.PreviousETA != nil)

	st := newRetryState(a.cfg)

	// 1) structured output
	if a.runPhase(ctx, rid, st, PhaseStructured, system, user, a.cfg.MaxAttempts, &reply) {
		return a.finish(rid, start, reply)
	}
	// 2) free-form, only when the backend rejected structured output
	if st.structuredRejected && ctx.Err() == nil {
		if a.runPhase(ctx, rid, st, PhaseFreeform, system, user, a.cfg.MaxAttempts, &reply) {
			return a.finish(rid, start, reply)
		}
	}
	// 3) compact last resort
	if ctx.Err() == nil {
		sys, usr := BuildLastResortPrompts(in, a.schema)
		st.maxTokens = st.lastResortTokens()
		if a.runPhase(ctx, rid, st, PhaseLastResort, sys, usr, 1, &reply) {
			return a.finish(rid, start, reply)
		}
	}

	// 4) unavailable
	cause := st.lastErr
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	if cause == nil {
		cause = ErrEmptyReply
	}
	reply.Err = fmt.Errorf("%w: %w", ErrUnavailable, cause)
	a.logger.Error("llm.adapter.unavailable",
		"req_id", rid, "attempts", st.total, "error", reply.Err,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return reply
}

// runPhase performs up to maxAttempts calls in one phase and reports whether
// a proposal was parsed. Parameter refusals do not consume an attempt.
func (a *Adapter) runPhase(ctx context.Context, rid string, st *retryState, phase Phase, system, user string, maxAttempts int, reply *Reply) bool {
	for attempt := 1; attempt <= maxAttempts; {
		if st.total > 0 {
			if err := a.sleep(ctx, a.cfg.Delay); err != nil {
				st.lastErr = err
				return false
			}
		}
		st.total++

		req := ChatRequest{
			System:    system,
			User:      user,
			MaxTokens: st.tokens(),
			Params:    st.params(a.params),
		}
		if phase == PhaseStructured {
			req.Schema = a.schema
			req.SchemaName = ProposalSchemaName
		}

		callStart := time.Now()
		resp, err := a.transport.Complete(ctx, req)
		rec := Attempt{
			Number:           st.total,
			Phase:            phase,
			MaxTokens:        req.MaxTokens,
			LatencyMs:        time.Since(callStart).Milliseconds(),
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}

		var upe *UnsupportedParamError
		switch {
		case err != nil && ctx.Err() != nil:
			st.lastErr = ctx.Err()
			a.record(rid, reply, rec, "error", ctx.Err())
			return false
		case errors.Is(err, ErrStructuredOutputUnsupported),
			errors.As(err, &upe) && upe.Param == ParamResponseFormat:
			st.lastErr = err
			a.record(rid, reply, rec, "structured_rejected", err)
			if phase == PhaseStructured {
				st.structuredRejected = true
				return false
			}
			attempt++
		case errors.As(err, &upe):
			st.lastErr = err
			a.record(rid, reply, rec, "unsupported_param", err)
			if !st.remove(upe.Param) {
				attempt++
			}
		case err != nil:
			st.lastErr = err
			a.record(rid, reply, rec, "error", err)
			attempt++
		case strings.TrimSpace(resp.Content) == "":
			st.lastErr = ErrEmptyReply
			a.record(rid, reply, rec, "empty", ErrEmptyReply)
			st.grow(resp.Usage)
			attempt++
		default:
			p, clean, dropped, perr := a.parse(resp.Content)
			reply.Raw = resp.Content
			if perr != nil {
				st.lastErr = perr
				a.record(rid, reply, rec, "malformed", perr)
				attempt++
				continue
			}
			a.record(rid, reply, rec, "ok", nil)
			reply.Proposal = p
			reply.Raw = string(clean)
			reply.Dropped = dropped
			return true
		}
	}
	return false
}

func (a *Adapter) record(rid string, reply *Reply, rec Attempt, outcome string, err error) {
	rec.Outcome = outcome
	if err != nil {
		rec.Error = err.Error()
	}
	reply.Attempts = append(reply.Attempts, rec)
	if a.observer != nil {
		a.observer.ObserveAttempt(rec.Phase, outcome, time.Duration(rec.LatencyMs)*time.Millisecond)
	}
	if err != nil {
		a.logger.Warn("llm.adapter.attempt",
			"req_id", rid, "attempt", rec.Number, "phase", rec.Phase,
			"max_tokens", rec.MaxTokens, "outcome", outcome, "error", err,
		)
		return
	}
	a.logger.Debug("llm.adapter.attempt",
		"req_id", rid, "attempt", rec.Number, "phase", rec.Phase,
		"max_tokens", rec.MaxTokens, "outcome", outcome,
	)
}

func (a *Adapter) finish(rid string, start time.Time, reply Reply) Reply {
	p := reply.Proposal
	a.logger.Info("llm.adapter.ok",
		"req_id", rid,
		"attempts", len(reply.Attempts),
		"vehicle", p.Vehicle,
		"eta_iso", p.ETAISO,
		"status", p.Status,
		"confidence", p.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return reply
}

// parse validates strictly first, then tries a lenient sanitize before
// giving up on the content.
func (a *Adapter) parse(content string) (*Proposal, []byte, []string, error) {
	frag, ok := ExtractJSONFragment(content)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: no json object in reply", ErrMalformedReply)
	}

	var dropped []string
	if err := ValidateJSON(a.compiled, frag); err != nil {
		cleaned, d, sErr := NormalizeAndSanitizeJSON(frag, a.logger)
		if sErr != nil {
			return nil, frag, nil, fmt.Errorf("%w: %v", ErrMalformedReply, sErr)
		}
		if vErr := ValidateJSON(a.compiled, cleaned); vErr != nil {
			return nil, frag, d, fmt.Errorf("%w: %v", ErrMalformedReply, vErr)
		}
		a.logger.Warn("llm.adapter.lenient_sanitize_applied", "dropped", d)
		frag, dropped = cleaned, d
	}

	var p Proposal
	if err := json.Unmarshal(frag, &p); err != nil {
		return nil, frag, dropped, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	p.Confidence = clamp01(p.Confidence)
	return &p, frag, dropped, nil
}
