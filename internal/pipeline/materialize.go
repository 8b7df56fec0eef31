package pipeline

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
)

// Document is the metadata shared by every record derived from one upload.
type Document struct {
	StudentID   uuid.UUID
	UploadedBy  uuid.UUID
	FileName    string
	FileType    string
	MimeType    string
	SizeBytes   int64
	StoragePath string
}

type MaterializeInput struct {
	Document Document
	Entries  []llm.Entry
	RawText  string
}

// EntryFailure describes an entry that could not be persisted.
type EntryFailure struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Error string `json:"error"`
}

type MaterializeResult struct {
	Count    int                    `json:"count"`
	Files    []*entity.UploadedFile `json:"files"`
	Analyses []*entity.FileAnalysis `json:"analyses"`
	Failures []EntryFailure         `json:"failures"`
}

// Materializer turns extracted entries into record pairs.
type Materializer struct {
	drv      *entsql.Driver
	files    repository.FileRepository
	analyses repository.AnalysisRepository
	logger   *slog.Logger
}

func NewMaterializer(drv *entsql.Driver, files repository.FileRepository, analyses repository.AnalysisRepository, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{drv: drv, files: files, analyses: analyses, logger: logger}
}

// Materialize stores each entry as a completed FileRecord plus AnalysisRecord in
// its own transaction. A failed entry is skipped and reported; the raw text goes
// to the first entry that commits.
func (m *Materializer) Materialize(ctx context.Context, in MaterializeInput) MaterializeResult {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	res := MaterializeResult{
		Files:    make([]*entity.UploadedFile, 0, len(in.Entries)),
		Analyses: make([]*entity.FileAnalysis, 0, len(in.Entries)),
		Failures: []EntryFailure{},
	}
	raw := capRunes(in.RawText, constants.MaxRawTextChars)
	rawStored := false

	for i, e := range in.Entries {
		e = llm.NormalizeEntry(e)
		f := &entity.UploadedFile{
			ID:             uuid.New(),
			StudentID:      in.Document.StudentID,
			UploadedBy:     in.Document.UploadedBy,
			FileName:       in.Document.FileName,
			FileType:       in.Document.FileType,
			MimeType:       in.Document.MimeType,
			FileSizeBytes:  in.Document.SizeBytes,
			StoragePath:    in.Document.StoragePath,
			Classification: e.Classification,
			AnalysisStatus: string(constants.StatusComplete),
		}
		a := &entity.FileAnalysis{
			ID:              uuid.New(),
			FileID:          f.ID,
			StudentID:       in.Document.StudentID,
			AnalysisContent: e.AnalysisContent,
		}
		if !rawStored {
			a.RawText = raw
		}

		err := repository.WithTx(ctx, m.drv, func(ctx context.Context) error {
			if err := m.files.Create(ctx, f); err != nil {
				return err
			}
			return m.analyses.Create(ctx, a)
		})
		if err != nil {
			m.logger.Error("materialize.entry.failed",
				"req_id", rid, "index", i, "title", e.Title, "error", err)
			res.Failures = append(res.Failures, EntryFailure{Index: i, Title: e.Title, Error: common.UserMessage(err)})
			continue
		}
		rawStored = true
		res.Files = append(res.Files, f)
		res.Analyses = append(res.Analyses, a)
		res.Count++
	}

	m.logger.Info("materialize.done",
		"req_id", rid,
		"entries", len(in.Entries),
		"count", res.Count,
		"failures", len(res.Failures),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func capRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
