// Package pipeline runs uploaded documents through decode, extraction and
// persistence, and re-derives existing records from their stored raw text.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/storage"
)

// EntryExtractor is satisfied by *llm.Extractor.
type EntryExtractor interface {
	Extract(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error)
}

// Processor coordinates decode, model extraction, blob storage and materialization.
type Processor struct {
	Logger    *slog.Logger
	Timeout   time.Duration
	DB        *entsql.Driver
	Students  repository.StudentRepository
	Files     repository.FileRepository
	Analyses  repository.AnalysisRepository
	Blobs     storage.BlobStore
	Decoder   *document.Decoder
	Extractor EntryExtractor

	materializer *Materializer
	now          func() time.Time
}

func NewProcessor(
	logger *slog.Logger,
	timeout time.Duration,
	drv *entsql.Driver,
	students repository.StudentRepository,
	files repository.FileRepository,
	analyses repository.AnalysisRepository,
	blobs storage.BlobStore,
	dec *document.Decoder,
	ext EntryExtractor,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Processor{
		Logger:       logger,
		Timeout:      timeout,
		DB:           drv,
		Students:     students,
		Files:        files,
		Analyses:     analyses,
		Blobs:        blobs,
		Decoder:      dec,
		Extractor:    ext,
		materializer: NewMaterializer(drv, files, analyses, logger),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzeRequest is one uploaded document. Hints are form values used where the
// model left a classification field empty.
type AnalyzeRequest struct {
	ConsultantID uuid.UUID
	StudentID    uuid.UUID
	FileName     string
	MimeType     string
	Data         []byte
	Hints        entity.Classification
}

// Analyze decodes the document, extracts every entry and stores one record pair
// per entry. Nothing is written when decoding or the model call fails.
func (p *Processor) Analyze(ctx context.Context, req AnalyzeRequest) (MaterializeResult, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()

	st, err := p.authorizeStudent(ctx, req.ConsultantID, req.StudentID)
	if err != nil {
		return MaterializeResult{}, err
	}

	ext := constants.NormalizeExt(filepath.Ext(req.FileName))
	mime := strings.TrimSpace(req.MimeType)
	if mime == "" || mime == "application/octet-stream" {
		mime = constants.MimeForExt(ext)
	}
	p.Logger.Info("analysis.upload.start",
		"req_id", rid, "student_id", req.StudentID, "file_name", req.FileName, "bytes", len(req.Data))

	content, err := p.Decoder.Decode(req.FileName, mime, req.Data)
	if err != nil {
		p.Logger.Warn("analysis.upload.decode_failed", "req_id", rid, "file_name", req.FileName, "error", err)
		return MaterializeResult{}, err
	}

	ectx, cancel := context.WithTimeout(ctx, p.Timeout)
	out, err := p.Extractor.Extract(ectx, llm.ExtractRequest{Student: studentContext(st), Content: content})
	cancel()
	if err != nil {
		p.Logger.Error("analysis.upload.extract_failed", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return MaterializeResult{}, timeoutAware(err)
	}

	entries := make([]llm.Entry, len(out.Entries))
	for i, e := range out.Entries {
		e.Classification = e.Classification.WithDefaults(req.Hints)
		entries[i] = llm.NormalizeEntry(e)
	}

	key := storage.ObjectKey(req.StudentID, req.FileName, p.now())
	if err := p.Blobs.Put(ctx, key, req.Data, mime); err != nil {
		p.Logger.Error("analysis.upload.store_failed", "req_id", rid, "storage_path", key, "error", err)
		return MaterializeResult{}, common.NewAppError("PERSISTENCE_FAILED", "파일을 저장하지 못했습니다.", wrapPersist(err))
	}

	res := p.materializer.Materialize(ctx, MaterializeInput{
		Document: Document{
			StudentID:   req.StudentID,
			UploadedBy:  req.ConsultantID,
			FileName:    req.FileName,
			FileType:    ext,
			MimeType:    mime,
			SizeBytes:   int64(len(req.Data)),
			StoragePath: key,
		},
		Entries: entries,
		RawText: content.Text,
	})
	if res.Count == 0 {
		if derr := p.Blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			p.Logger.Warn("analysis.upload.blob_cleanup_failed", "req_id", rid, "storage_path", key, "error", derr)
		}
		return res, common.NewAppError("PERSISTENCE_FAILED", "활동 기록을 저장하지 못했습니다.", common.ErrPersistenceFailed)
	}

	p.Logger.Info("analysis.upload.ok",
		"req_id", rid,
		"student_id", req.StudentID,
		"storage_path", key,
		"entries", len(entries),
		"count", res.Count,
		"shape", out.Shape,
		"repaired", out.Repaired,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// authorizeStudent loads the student and checks the caller owns it.
func (p *Processor) authorizeStudent(ctx context.Context, consultantID, studentID uuid.UUID) (*entity.Student, error) {
	if consultantID == uuid.Nil {
		return nil, common.NewAppError("UNAUTHORIZED", "로그인이 필요합니다.", common.ErrUnauthorized)
	}
	st, err := p.Students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if st.CreatedBy != consultantID {
		p.Logger.Warn("analysis.forbidden",
			"req_id", common.RequestIDFromContext(ctx), "student_id", studentID, "consultant_id", consultantID)
		return nil, forbidden()
	}
	return st, nil
}

func studentContext(st *entity.Student) llm.StudentContext {
	return llm.StudentContext{Grade: st.Grade, EnrollmentYear: st.EnrollmentYear}
}

func forbidden() error {
	return common.NewAppError("FORBIDDEN", "접근 권한이 없습니다.", common.ErrForbidden)
}

func wrapPersist(err error) error {
	return fmt.Errorf("%w: %v", common.ErrPersistenceFailed, err)
}

// timeoutAware turns a deadline hit into the user-facing timeout error.
func timeoutAware(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewAppError("ANALYSIS_TIMEOUT", timeoutMessage, fmt.Errorf("%w: %v", common.ErrProviderError, err))
	}
	return err
}
