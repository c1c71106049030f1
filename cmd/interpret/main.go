// Command interpret replays JSON-lines messages through the interpretation
// pipeline and prints one JSON result per line, in input order.
//
//	interpret [-tz America/Denver] [-workers 4] [-debug] < messages.jsonl
//
// Each input line is a pipeline request:
//
//	{"text":"Responding SAR7 ETA 60min","reference_time":"2025-08-11T12:39:15-07:00"}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/responder-tracker/internal/common"
	"github.com/joseph-ayodele/responder-tracker/internal/llm"
	"github.com/joseph-ayodele/responder-tracker/internal/llm/openai"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
)

type output struct {
	Line   int              `json:"line"`
	Result *pipeline.Result `json:"result,omitempty"`
	Trace  *pipeline.Trace  `json:"trace,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func main() {
	common.LoadDotEnv()
	cfg := common.LoadConfig()

	tz := flag.String("tz", cfg.Pipeline.Timezone, "timezone for reference times")
	workers := flag.Int("workers", 4, "concurrent interpretations")
	debug := flag.Bool("debug", false, "include prompts, attempts and decisions")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: common.ParseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	loc, err := common.PipelineConfig{Timezone: *tz}.Location()
	if err != nil {
		logger.Error("unknown timezone", "tz", *tz, "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var transport llm.ChatTransport
	if cfg.LLM.APIKey != "" {
		transport = openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	}
	adapter, err := llm.NewAdapter(transport, llm.AdapterConfig{
		Retry: llm.RetryConfig{
			MaxAttempts:      cfg.LLM.MaxAttempts,
			InitialMaxTokens: cfg.LLM.MaxTokens,
			MaxTokensCap:     cfg.LLM.MaxTokensCap,
			GrowthFactor:     cfg.LLM.TokenGrowth,
			Delay:            cfg.LLM.RetryDelay,
		},
		Params: map[string]any{llm.ParamTemperature: cfg.LLM.Temperature},
	}, logger)
	if err != nil {
		logger.Error("failed to build model adapter", "error", err)
		os.Exit(1)
	}
	interpreter := pipeline.NewInterpreter(adapter, logger, pipeline.WithTimeout(cfg.Pipeline.InterpretTimeout))

	if err := run(ctx, os.Stdin, os.Stdout, interpreter, loc, *workers, *debug); err != nil {
		logger.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

// run reads every request, interprets them with bounded concurrency and
// writes the results in input order.
func run(ctx context.Context, in io.Reader, out io.Writer, interp *pipeline.Interpreter, loc *time.Location, workers int, debug bool) error {
	var lines [][]byte
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		b := append([]byte(nil), sc.Bytes()...)
		lines = append(lines, b)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	results := make([]output, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, line := range lines {
		g.Go(func() error {
			results[i] = interpretLine(gctx, i+1, line, interp, loc, debug)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for _, r := range results {
		if r.Line == 0 {
			continue
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}

func interpretLine(ctx context.Context, n int, line []byte, interp *pipeline.Interpreter, loc *time.Location, debug bool) output {
	if len(line) == 0 {
		return output{}
	}
	var req pipeline.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return output{Line: n, Error: fmt.Sprintf("invalid request: %v", err)}
	}
	if req.ReferenceTime.IsZero() {
		return output{Line: n, Error: "reference_time is required"}
	}
	req.ReferenceTime = req.ReferenceTime.In(loc)
	res, trace := interp.InterpretWithTrace(ctx, req)
	o := output{Line: n, Result: &res}
	if debug {
		o.Trace = trace
	}
	return o
}
