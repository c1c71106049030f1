package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/responder-tracker/internal/llm"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
)

type stubProposer struct{}

func (stubProposer) Propose(context.Context, llm.PromptInput) llm.Reply {
	return llm.Reply{Proposal: &llm.Proposal{Vehicle: "SAR7", ETAISO: "Unknown", Status: "Responding", Confidence: 0.8}}
}

func (stubProposer) Correct(context.Context, llm.CorrectionInput) llm.Reply {
	return llm.Reply{Err: llm.ErrUnavailable}
}

func TestRunKeepsInputOrder(t *testing.T) {
	pdt := time.FixedZone("PDT", -7*3600)
	input := strings.Join([]string{
		`{"text":"Responding SAR7 ETA 60min","reference_time":"2025-08-11T12:39:15-07:00"}`,
		``,
		`not json`,
		`{"text":"omw"}`,
		`{"text":"Responding SAR7 ETA 30min","reference_time":"2025-08-11T12:39:15-07:00"}`,
	}, "\n")

	var out bytes.Buffer
	interp := pipeline.NewInterpreter(stubProposer{}, nil)
	require.NoError(t, run(context.Background(), strings.NewReader(input), &out, interp, pdt, 3, false))

	var got []output
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var o output
		require.NoError(t, json.Unmarshal(sc.Bytes(), &o))
		got = append(got, o)
	}
	require.Len(t, got, 4)

	assert.Equal(t, 1, got[0].Line)
	require.NotNil(t, got[0].Result)
	assert.Equal(t, "SAR-7", got[0].Result.Vehicle)
	assert.Equal(t, "13:39", got[0].Result.ETALocal)
	assert.Nil(t, got[0].Trace)

	assert.Equal(t, 3, got[1].Line)
	assert.Contains(t, got[1].Error, "invalid request")

	assert.Equal(t, 4, got[2].Line)
	assert.Equal(t, "reference_time is required", got[2].Error)

	assert.Equal(t, 5, got[3].Line)
	assert.Equal(t, "13:09", got[3].Result.ETALocal)
}

func TestRunDebugIncludesTrace(t *testing.T) {
	input := `{"text":"ETA 1430","reference_time":"2025-08-11T12:39:15Z"}`

	var out bytes.Buffer
	interp := pipeline.NewInterpreter(stubProposer{}, nil)
	require.NoError(t, run(context.Background(), strings.NewReader(input), &out, interp, time.UTC, 0, true))

	var o output
	require.NoError(t, json.Unmarshal(out.Bytes(), &o))
	require.NotNil(t, o.Trace)
	assert.NotEmpty(t, o.Trace.Decisions)
	assert.Equal(t, "14:30", o.Result.ETALocal)
}
