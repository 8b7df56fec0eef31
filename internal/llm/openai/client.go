package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
)

var _ llm.Completer = (*Client)(nil)

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements llm.Completer with one chat/completions call in JSON
// mode. There is no retry; a non-2xx answer becomes a *common.ProviderError.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"max_tokens":      maxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": userContent(req)},
		},
	}

	c.logger.Info("llm.complete.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"max_tokens", maxTokens,
		"user_len", len(req.UserText),
		"has_image", req.ImageDataURL != "",
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.complete.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if status != 0 && status/100 != 2 {
			return llm.Completion{}, &common.ProviderError{Status: status, Body: string(raw)}
		}
		return llm.Completion{}, common.NewAppError("PROVIDER_ERROR", "AI 서버에 연결할 수 없습니다.",
			fmt.Errorf("%w: %w", common.ErrProviderError, err))
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.complete.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, common.NewAppError("MALFORMED_RESPONSE", "AI 응답을 해석할 수 없습니다.",
			fmt.Errorf("%w: decode openai response: %v", common.ErrMalformedResponse, err))
	}
	if len(cc.Choices) == 0 || strings.TrimSpace(cc.Choices[0].Message.Content) == "" {
		c.logger.Error("llm.complete.empty",
			"req_id", rid, "choices", len(cc.Choices),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, common.NewAppError("EMPTY_RESPONSE", "OpenAI 응답이 비어있습니다.", common.ErrEmptyResponse)
	}

	out := llm.Completion{
		Content:          strings.TrimSpace(cc.Choices[0].Message.Content),
		FinishReason:     cc.Choices[0].FinishReason,
		Model:            cc.Model,
		PromptTokens:     cc.Usage.PromptTokens,
		CompletionTokens: cc.Usage.CompletionTokens,
	}
	c.logger.Info("llm.complete.ok",
		"req_id", rid,
		"model", out.Model,
		"finish_reason", out.FinishReason,
		"prompt_tokens", out.PromptTokens,
		"completion_tokens", out.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// userContent is a plain string for text, or a text+image_url part list for vision.
func userContent(req llm.CompletionRequest) any {
	if req.ImageDataURL == "" {
		return req.UserText
	}
	return []map[string]any{
		{"type": "text", "text": req.UserText},
		{"type": "image_url", "image_url": map[string]any{"url": req.ImageDataURL}},
	}
}
