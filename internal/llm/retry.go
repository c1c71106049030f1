package llm

import (
	"context"
	"time"
)

// RetryConfig bounds the adapter's retry state machine.
type RetryConfig struct {
	MaxAttempts         int           // per phase; default 3
	InitialMaxTokens    int           // default 600
	MaxTokensCap        int           // default 4000
	GrowthFactor        float64       // applied on empty replies; default 2
	LastResortMaxTokens int           // default MaxTokensCap
	Delay               time.Duration // pause between attempts; default 250ms, negative disables
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialMaxTokens <= 0 {
		c.InitialMaxTokens = 600
	}
	if c.MaxTokensCap <= 0 {
		c.MaxTokensCap = 4000
	}
	if c.MaxTokensCap < c.InitialMaxTokens {
		c.MaxTokensCap = c.InitialMaxTokens
	}
	if c.GrowthFactor <= 1 {
		c.GrowthFactor = 2
	}
	if c.LastResortMaxTokens <= 0 {
		c.LastResortMaxTokens = c.MaxTokensCap
	}
	if c.Delay < 0 {
		c.Delay = 0
	} else if c.Delay == 0 {
		c.Delay = 250 * time.Millisecond
	}
	return c
}

// retryState is threaded through every attempt of one adapter call.
type retryState struct {
	cfg                RetryConfig
	total              int
	maxTokens          int
	removed            map[string]bool
	structuredRejected bool
	lastErr            error
}

func newRetryState(cfg RetryConfig) *retryState {
	return &retryState{
		cfg:       cfg,
		maxTokens: cfg.InitialMaxTokens,
		removed:   map[string]bool{},
	}
}

// params returns base minus every parameter the backend has refused.
func (s *retryState) params(base map[string]any) map[string]any {
	if len(base) == 0 {
		return nil
	}
	out := make(map[string]any, len(base))
	for k, v := range base {
		if !s.removed[k] {
			out[k] = v
		}
	}
	return out
}

// tokens is the budget for the next request; 0 once the backend refused it.
func (s *retryState) tokens() int {
	if s.removed[ParamMaxTokens] {
		return 0
	}
	return s.maxTokens
}

// remove drops a refused parameter. It reports false if it was already gone,
// so the same refusal cannot loop forever.
func (s *retryState) remove(param string) bool {
	if s.removed[param] {
		return false
	}
	s.removed[param] = true
	return true
}

// grow raises the budget after an empty reply. When the backend reports it
// spent the whole budget, growth starts from what it actually used.
func (s *retryState) grow(usage Usage) {
	base := s.maxTokens
	if usage.CompletionTokens > base {
		base = usage.CompletionTokens
	}
	next := int(float64(base) * s.cfg.GrowthFactor)
	if next > s.cfg.MaxTokensCap {
		next = s.cfg.MaxTokensCap
	}
	s.maxTokens = next
}

func (s *retryState) lastResortTokens() int {
	if s.removed[ParamMaxTokens] {
		return 0
	}
	if s.maxTokens > s.cfg.LastResortMaxTokens {
		return s.maxTokens
	}
	return s.cfg.LastResortMaxTokens
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
