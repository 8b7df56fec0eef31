package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
)

const timeoutMessage = "분석 시간이 초과되었습니다."

// Reanalyzed is a record pair after a successful re-derivation.
type Reanalyzed struct {
	File     *entity.UploadedFile `json:"file"`
	Analysis *entity.FileAnalysis `json:"analysis"`
}

// Reanalyze re-runs extraction on the record's own raw text and overwrites its
// classification and content with the first entry. Ownership and raw text are
// checked before the status changes, so a rejected call leaves the record as is.
func (p *Processor) Reanalyze(ctx context.Context, consultantID, fileID uuid.UUID) (*Reanalyzed, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()

	f, err := p.Files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	st, err := p.authorizeStudent(ctx, consultantID, f.StudentID)
	if err != nil {
		return nil, err
	}
	a, err := p.Analyses.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.RawText) == "" {
		return nil, common.NewAppError("NO_RAW_TEXT", "재분석할 원문 텍스트가 없습니다.", common.ErrNoRawText)
	}

	if err := p.Files.SetStatus(ctx, fileID, constants.StatusAnalyzing, nil); err != nil {
		return nil, err
	}
	p.Logger.Info("analysis.reanalyze.start", "req_id", rid, "file_id", fileID, "raw_len", len([]rune(a.RawText)))

	ectx, cancel := context.WithTimeout(ctx, p.Timeout)
	out, err := p.Extractor.Extract(ectx, llm.ExtractRequest{
		Student: studentContext(st),
		Content: document.Content{Format: constants.TEXT, Text: a.RawText},
	})
	cancel()
	if err != nil {
		err = timeoutAware(err)
		p.markFailed(ctx, fileID, common.UserMessage(err))
		p.Logger.Error("analysis.reanalyze.extract_failed", "req_id", rid, "file_id", fileID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	e := llm.NormalizeEntry(out.Entries[0])
	err = repository.WithTx(ctx, p.DB, func(ctx context.Context) error {
		if err := p.Files.UpdateClassification(ctx, fileID, e.Classification); err != nil {
			return err
		}
		if err := p.Analyses.ReplaceContent(ctx, fileID, e.AnalysisContent); err != nil {
			return err
		}
		return p.Files.SetStatus(ctx, fileID, constants.StatusComplete, nil)
	})
	if err != nil {
		p.markFailed(ctx, fileID, "재분석 결과를 저장하지 못했습니다.")
		p.Logger.Error("analysis.reanalyze.persist_failed", "req_id", rid, "file_id", fileID, "error", err)
		return nil, common.NewAppError("PERSISTENCE_FAILED", "재분석 결과를 저장하지 못했습니다.", wrapPersist(err))
	}

	if f, err = p.Files.GetByID(ctx, fileID); err != nil {
		return nil, err
	}
	if a, err = p.Analyses.GetByFileID(ctx, fileID); err != nil {
		return nil, err
	}
	p.Logger.Info("analysis.reanalyze.ok",
		"req_id", rid,
		"file_id", fileID,
		"entries", len(out.Entries),
		"category_main", f.CategoryMain,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Reanalyzed{File: f, Analysis: a}, nil
}

// markFailed survives a cancelled request context so the record never stays 분석중.
func (p *Processor) markFailed(ctx context.Context, fileID uuid.UUID, msg string) {
	if msg == "" {
		msg = "분석 중 오류가 발생했습니다."
	}
	if err := p.Files.SetStatus(context.WithoutCancel(ctx), fileID, constants.StatusFailed, &msg); err != nil {
		p.Logger.Error("analysis.mark_failed.failed", "file_id", fileID, "error", err)
	}
}
