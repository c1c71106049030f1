package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/responder-tracker/internal/llm"
)

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage llm.Usage `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete implements llm.ChatTransport. Capability refusals are mapped to
// llm.ErrStructuredOutputUnsupported and *llm.UnsupportedParamError so the
// adapter can degrade instead of failing.
func (c *Client) Complete(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
	}
	for k, v := range req.Params {
		body[k] = v
	}
	if req.MaxTokens > 0 {
		body["max_completion_tokens"] = req.MaxTokens
	}
	if req.Schema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.SchemaName,
				"strict": true,
				"schema": req.Schema,
			},
		}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.PostJSON(ctx, c.httpClient, endpoint, body, headers, c.log)
	if err != nil {
		var se *llm.HTTPStatusError
		if !errors.As(err, &se) {
			return llm.ChatResponse{}, fmt.Errorf("openai http error: %w", err)
		}
		if se.StatusCode == 400 || se.StatusCode == 422 {
			if mapped := mapCapabilityError(se.Body); mapped != nil {
				return llm.ChatResponse{}, mapped
			}
		}
		return llm.ChatResponse{}, fmt.Errorf("openai status %d: %s: %w", se.StatusCode, truncate(string(se.Body), 300), err)
	}

	var cc chatCompletion
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.openai.decode_error", "error", err, "raw_bytes", len(raw))
		return llm.ChatResponse{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return llm.ChatResponse{Usage: cc.Usage}, errors.New("no choices in openai response")
	}
	return llm.ChatResponse{
		Content:      strings.TrimSpace(cc.Choices[0].Message.Content),
		FinishReason: cc.Choices[0].FinishReason,
		Usage:        cc.Usage,
	}, nil
}

// mapCapabilityError recognises "unsupported parameter/value" refusals.
func mapCapabilityError(raw []byte) error {
	var e apiError
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	msg := e.Error.Message
	lower := strings.ToLower(msg)
	unsupported := e.Error.Code == "unsupported_parameter" || e.Error.Code == "unsupported_value" ||
		strings.Contains(lower, "unsupported parameter") || strings.Contains(lower, "unsupported value") ||
		strings.Contains(lower, "not supported")
	if !unsupported {
		return nil
	}

	param := e.Error.Param
	switch {
	case param == "response_format" || strings.HasPrefix(param, "response_format.") ||
		strings.Contains(lower, "response_format") || strings.Contains(lower, "json_schema"):
		return fmt.Errorf("%w: %s", llm.ErrStructuredOutputUnsupported, msg)
	case param == "max_completion_tokens" || param == "max_tokens":
		return &llm.UnsupportedParamError{Param: llm.ParamMaxTokens, Message: msg}
	case param != "":
		return &llm.UnsupportedParamError{Param: param, Message: msg}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
