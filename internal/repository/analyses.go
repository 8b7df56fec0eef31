package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
)

type AnalysisRepository interface {
	Create(ctx context.Context, a *entity.FileAnalysis) error
	GetByFileID(ctx context.Context, fileID uuid.UUID) (*entity.FileAnalysis, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*entity.FileAnalysis, error)
	// Edit stores a consultant's manual correction and marks the record edited.
	Edit(ctx context.Context, fileID uuid.UUID, c entity.AnalysisContent) error
	// ReplaceContent stores a machine re-derivation and clears the edited flag.
	ReplaceContent(ctx context.Context, fileID uuid.UUID, c entity.AnalysisContent) error
}

type analysisRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewAnalysisRepository(drv *entsql.Driver, logger *slog.Logger) AnalysisRepository {
	return &analysisRepo{
		drv:    drv,
		logger: logger,
	}
}

var analysisColumns = []string{
	"id", "file_id", "student_id", "title", "activity_content", "conclusion", "research_plan",
	"reading_activities", "evaluation_competency", "raw_text", "is_edited", "created_at", "updated_at",
}

func scanAnalysis(rows *entsql.Rows) (*entity.FileAnalysis, error) {
	var a entity.FileAnalysis
	if err := rows.Scan(
		&a.ID, &a.FileID, &a.StudentID, &a.Title, &a.ActivityContent, &a.Conclusion, &a.ResearchPlan,
		&a.ReadingActivities, &a.EvaluationCompetency, &a.RawText, &a.IsEdited, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *analysisRepo) Create(ctx context.Context, a *entity.FileAnalysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	c := a.AnalysisContent.Trim()
	a.AnalysisContent = c

	q := entsql.Dialect(r.drv.Dialect()).Insert(tableAnalyses).
		Columns(analysisColumns...).
		Values(
			a.ID, a.FileID, a.StudentID, c.Title, c.ActivityContent, c.Conclusion, c.ResearchPlan,
			c.ReadingActivities, c.EvaluationCompetency, a.RawText, a.IsEdited, a.CreatedAt, a.UpdatedAt,
		)
	if _, err := execBuilder(ctx, r.drv, q); err != nil {
		r.logger.Error("failed to create file analysis", "file_id", a.FileID, "error", err)
		return wrapDB(err, "create file analysis")
	}
	return nil
}

func (r *analysisRepo) GetByFileID(ctx context.Context, fileID uuid.UUID) (*entity.FileAnalysis, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(analysisColumns...).From(entsql.Table(tableAnalyses)).
		Where(entsql.EQ("file_id", fileID))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to get file analysis", "file_id", fileID, "error", err)
		return nil, wrapDB(err, "get file analysis")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapDB(err, "get file analysis")
		}
		return nil, common.NewAppError("NOT_FOUND", "분석 결과를 찾을 수 없습니다.", common.ErrNotFound)
	}
	a, err := scanAnalysis(rows)
	if err != nil {
		return nil, wrapDB(err, "scan file analysis")
	}
	return a, nil
}

func (r *analysisRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*entity.FileAnalysis, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(analysisColumns...).From(entsql.Table(tableAnalyses)).
		Where(entsql.EQ("student_id", studentID)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to list file analyses", "student_id", studentID, "error", err)
		return nil, wrapDB(err, "list file analyses")
	}
	defer rows.Close()
	var out []*entity.FileAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, wrapDB(err, "scan file analysis")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "list file analyses")
	}
	return out, nil
}

func (r *analysisRepo) Edit(ctx context.Context, fileID uuid.UUID, c entity.AnalysisContent) error {
	return r.updateContent(ctx, fileID, c, true)
}

func (r *analysisRepo) ReplaceContent(ctx context.Context, fileID uuid.UUID, c entity.AnalysisContent) error {
	return r.updateContent(ctx, fileID, c, false)
}

func (r *analysisRepo) updateContent(ctx context.Context, fileID uuid.UUID, c entity.AnalysisContent, edited bool) error {
	c = c.Trim()
	q := entsql.Dialect(r.drv.Dialect()).Update(tableAnalyses).
		Set("title", c.Title).
		Set("activity_content", c.ActivityContent).
		Set("conclusion", c.Conclusion).
		Set("research_plan", c.ResearchPlan).
		Set("reading_activities", c.ReadingActivities).
		Set("evaluation_competency", c.EvaluationCompetency).
		Set("is_edited", edited).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("file_id", fileID))
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to update file analysis", "file_id", fileID, "edited", edited, "error", err)
		return wrapDB(err, "update file analysis")
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "분석 결과를 찾을 수 없습니다.", common.ErrNotFound)
	}
	return nil
}
