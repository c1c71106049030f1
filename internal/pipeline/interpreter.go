package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/llm"
)

// Proposer is the Language-Model Adapter as the pipeline sees it.
type Proposer interface {
	Propose(ctx context.Context, in llm.PromptInput) llm.Reply
	Correct(ctx context.Context, in llm.CorrectionInput) llm.Reply
}

// Recorder receives per-interpretation outcomes (metrics hook).
type Recorder interface {
	ObserveInterpretation(res Result, anomaly *AnomalyReport, elapsed time.Duration)
}

// Interpreter runs the whole cascade for one message: model proposal,
// reconciliation, anomaly review. It holds no per-message state and is safe
// for concurrent use.
type Interpreter struct {
	proposer Proposer
	logger   *slog.Logger
	timeout  time.Duration
	recorder Recorder
	anomaly  *anomalyCorrector
}

type InterpreterOption func(*Interpreter)

// WithTimeout bounds both model calls; expiry surfaces as an unavailable reply.
func WithTimeout(d time.Duration) InterpreterOption {
	return func(i *Interpreter) { i.timeout = d }
}

func WithRecorder(r Recorder) InterpreterOption {
	return func(i *Interpreter) { i.recorder = r }
}

func NewInterpreter(proposer Proposer, logger *slog.Logger, opts ...InterpreterOption) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Interpreter{
		proposer: proposer,
		logger:   logger,
		timeout:  constants.DefaultInterpretationTimeout,
	}
	for _, o := range opts {
		o(i)
	}
	i.anomaly = &anomalyCorrector{proposer: proposer, logger: logger}
	return i
}

// Interpret never fails: infrastructure problems degrade to Unknown fields.
func (i *Interpreter) Interpret(ctx context.Context, req Request) Result {
	res, _ := i.InterpretWithTrace(ctx, req)
	return res
}

// InterpretWithTrace also returns prompts, attempts and decisions.
func (i *Interpreter) InterpretWithTrace(ctx context.Context, req Request) (Result, *Trace) {
	start := time.Now()
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	trace := &Trace{}
	trace.Primary = i.proposer.Propose(ctx, promptInput(req))

	res := Reconcile(req, trace.Primary, trace)
	res, trace.Anomaly = i.anomaly.review(ctx, req, res, trace)

	elapsed := time.Since(start)
	if i.recorder != nil {
		i.recorder.ObserveInterpretation(res, trace.Anomaly, elapsed)
	}
	i.logger.Info("pipeline.interpret.done",
		"status", res.Status,
		"status_source", res.StatusSource,
		"vehicle", res.Vehicle,
		"eta_local", res.ETALocal,
		"eta_source", res.ETASource,
		"correction_applied", res.CorrectionApplied,
		"model_unavailable", trace.Primary.Unavailable(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return res, trace
}

func promptInput(req Request) llm.PromptInput {
	return llm.PromptInput{
		Text:          req.Text,
		ReferenceTime: req.ReferenceTime,
		PreviousETA:   req.PreviousETA,
	}
}
