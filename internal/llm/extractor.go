package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
)

// Extractor runs one prompt → model → decode round trip.
type Extractor struct {
	completer     Completer
	maxInputChars int
	maxTokens     int
	logger        *slog.Logger
}

func NewExtractor(c Completer, maxInputChars, maxTokens int, logger *slog.Logger) *Extractor {
	if maxInputChars <= 0 {
		maxInputChars = constants.MaxPromptTextChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{completer: c, maxInputChars: maxInputChars, maxTokens: maxTokens, logger: logger}
}

// Extract sends the document to the model and decodes every entry it returns.
// A response cut off at the token ceiling is repaired to its last complete entry.
func (x *Extractor) Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	creq := CompletionRequest{
		System:    BuildSystemPrompt(req.Student),
		UserText:  BuildUserPrompt(req.Content, x.maxInputChars),
		MaxTokens: x.maxTokens,
	}
	if req.Content.Format == constants.IMAGE {
		if req.Content.Image == nil {
			return ExtractResult{}, common.NewAppError("EMPTY_CONTENT", "이미지 데이터가 없습니다.", common.ErrEmptyContent)
		}
		creq.ImageDataURL = req.Content.Image.DataURL()
	}

	x.logger.Info("llm.extract.start",
		"req_id", rid,
		"format", req.Content.Format,
		"text_len", len([]rune(req.Content.Text)),
		"has_image", creq.ImageDataURL != "",
	)

	comp, err := x.completer.Complete(ctx, creq)
	if err != nil {
		x.logger.Error("llm.extract.complete_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ExtractResult{}, err
	}
	if comp.Truncated() {
		x.logger.Warn("llm.extract.truncated",
			"req_id", rid,
			"completion_tokens", comp.CompletionTokens,
			"content_len", len(comp.Content),
		)
	}

	dec, err := Decode([]byte(comp.Content))
	res := ExtractResult{
		Entries:      dec.Entries,
		FinishReason: comp.FinishReason,
		Shape:        dec.Shape,
		Repaired:     dec.Repaired,
		Violations:   dec.Violations,
		RawResponse:  comp.Content,
	}
	if err != nil {
		x.logger.Error("llm.extract.decode_failed",
			"req_id", rid, "error", err,
			"finish_reason", comp.FinishReason,
			"content_len", len(comp.Content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res, err
	}

	for _, v := range dec.Violations {
		x.logger.Warn("llm.extract.schema_violation",
			"req_id", rid,
			"index", v.Index,
			"title", v.Title,
			"detail", v.Detail,
		)
	}

	x.logger.Info("llm.extract.ok",
		"req_id", rid,
		"model", comp.Model,
		"entries", len(dec.Entries),
		"skipped", dec.Skipped,
		"violations", len(dec.Violations),
		"shape", dec.Shape,
		"repaired", dec.Repaired,
		"finish_reason", comp.FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
