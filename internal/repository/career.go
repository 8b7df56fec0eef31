package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
)

type CareerRepository interface {
	// GetGoals returns NotFound when the student has no goals yet.
	GetGoals(ctx context.Context, studentID uuid.UUID) (*entity.CareerGoals, error)
	UpsertGoals(ctx context.Context, g *entity.CareerGoals) error
	AddChange(ctx context.Context, c *entity.CareerChange) error
	ListChanges(ctx context.Context, studentID uuid.UUID) ([]*entity.CareerChange, error)
	DeleteChange(ctx context.Context, studentID, id uuid.UUID) error
}

type careerRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewCareerRepository(drv *entsql.Driver, logger *slog.Logger) CareerRepository {
	return &careerRepo{
		drv:    drv,
		logger: logger,
	}
}

var goalColumns = []string{
	"id", "student_id", "career_field_1st", "career_detail_1st", "career_field_2nd", "career_detail_2nd",
	"target_univ_1_name", "target_univ_1_dept", "target_univ_2_name", "target_univ_2_dept",
	"target_univ_3_name", "target_univ_3_dept", "target_tier",
	"admission_hakjong_ratio", "admission_gyogwa_ratio", "admission_nonsul_ratio", "admission_jeongsi_ratio",
	"field_keywords", "special_notes", "created_at", "updated_at",
}

var changeColumns = []string{
	"id", "student_id", "change_date", "previous_career", "new_career", "reason", "created_at", "updated_at",
}

func (r *careerRepo) GetGoals(ctx context.Context, studentID uuid.UUID) (*entity.CareerGoals, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(goalColumns...).From(entsql.Table(tableCareerGoals)).
		Where(entsql.EQ("student_id", studentID))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to get career goals", "student_id", studentID, "error", err)
		return nil, wrapDB(err, "get career goals")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapDB(err, "get career goals")
		}
		return nil, common.NewAppError("NOT_FOUND", "진로 목표가 없습니다.", common.ErrNotFound)
	}
	var (
		g        entity.CareerGoals
		keywords string
	)
	if err := rows.Scan(
		&g.ID, &g.StudentID, &g.CareerField1st, &g.CareerDetail1st, &g.CareerField2nd, &g.CareerDetail2nd,
		&g.TargetUniv1Name, &g.TargetUniv1Dept, &g.TargetUniv2Name, &g.TargetUniv2Dept,
		&g.TargetUniv3Name, &g.TargetUniv3Dept, &g.TargetTier,
		&g.AdmissionHakjongRatio, &g.AdmissionGyogwaRatio, &g.AdmissionNonsulRatio, &g.AdmissionJeongsiRatio,
		&keywords, &g.SpecialNotes, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, wrapDB(err, "scan career goals")
	}
	if keywords != "" {
		if err := json.Unmarshal([]byte(keywords), &g.FieldKeywords); err != nil {
			r.logger.Warn("career goals keywords unreadable", "student_id", studentID, "error", err)
		}
	}
	if g.FieldKeywords == nil {
		g.FieldKeywords = []string{}
	}
	return &g, nil
}

// UpsertGoals inserts the single goals row of a student or overwrites it.
func (r *careerRepo) UpsertGoals(ctx context.Context, g *entity.CareerGoals) error {
	if g.FieldKeywords == nil {
		g.FieldKeywords = []string{}
	}
	kw, err := json.Marshal(g.FieldKeywords)
	if err != nil {
		return common.NewAppError("VALIDATION_ERROR", "field_keywords", common.ErrValidation)
	}
	now := time.Now().UTC()

	return WithTx(ctx, r.drv, func(ctx context.Context) error {
		existing, err := r.GetGoals(ctx, g.StudentID)
		switch {
		case err == nil:
			g.ID, g.CreatedAt = existing.ID, existing.CreatedAt
			g.UpdatedAt = now
			q := entsql.Dialect(r.drv.Dialect()).Update(tableCareerGoals).
				Set("career_field_1st", g.CareerField1st).
				Set("career_detail_1st", g.CareerDetail1st).
				Set("career_field_2nd", g.CareerField2nd).
				Set("career_detail_2nd", g.CareerDetail2nd).
				Set("target_univ_1_name", g.TargetUniv1Name).
				Set("target_univ_1_dept", g.TargetUniv1Dept).
				Set("target_univ_2_name", g.TargetUniv2Name).
				Set("target_univ_2_dept", g.TargetUniv2Dept).
				Set("target_univ_3_name", g.TargetUniv3Name).
				Set("target_univ_3_dept", g.TargetUniv3Dept).
				Set("target_tier", g.TargetTier).
				Set("admission_hakjong_ratio", g.AdmissionHakjongRatio).
				Set("admission_gyogwa_ratio", g.AdmissionGyogwaRatio).
				Set("admission_nonsul_ratio", g.AdmissionNonsulRatio).
				Set("admission_jeongsi_ratio", g.AdmissionJeongsiRatio).
				Set("field_keywords", string(kw)).
				Set("special_notes", g.SpecialNotes).
				Set("updated_at", now).
				Where(entsql.EQ("id", g.ID))
			if _, err := execBuilder(ctx, r.drv, q); err != nil {
				r.logger.Error("failed to update career goals", "student_id", g.StudentID, "error", err)
				return wrapDB(err, "update career goals")
			}
			return nil
		case isNotFound(err):
			g.ID = uuid.New()
			g.CreatedAt, g.UpdatedAt = now, now
			q := entsql.Dialect(r.drv.Dialect()).Insert(tableCareerGoals).
				Columns(goalColumns...).
				Values(
					g.ID, g.StudentID, g.CareerField1st, g.CareerDetail1st, g.CareerField2nd, g.CareerDetail2nd,
					g.TargetUniv1Name, g.TargetUniv1Dept, g.TargetUniv2Name, g.TargetUniv2Dept,
					g.TargetUniv3Name, g.TargetUniv3Dept, g.TargetTier,
					g.AdmissionHakjongRatio, g.AdmissionGyogwaRatio, g.AdmissionNonsulRatio, g.AdmissionJeongsiRatio,
					string(kw), g.SpecialNotes, g.CreatedAt, g.UpdatedAt,
				)
			if _, err := execBuilder(ctx, r.drv, q); err != nil {
				r.logger.Error("failed to create career goals", "student_id", g.StudentID, "error", err)
				return wrapDB(err, "create career goals")
			}
			return nil
		default:
			return err
		}
	})
}

func (r *careerRepo) AddChange(ctx context.Context, c *entity.CareerChange) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	q := entsql.Dialect(r.drv.Dialect()).Insert(tableCareerHistory).
		Columns(changeColumns...).
		Values(c.ID, c.StudentID, c.ChangeDate, c.PreviousCareer, c.NewCareer, c.Reason, c.CreatedAt, c.UpdatedAt)
	if _, err := execBuilder(ctx, r.drv, q); err != nil {
		r.logger.Error("failed to add career change", "student_id", c.StudentID, "error", err)
		return wrapDB(err, "add career change")
	}
	return nil
}

// ListChanges returns the history newest first.
func (r *careerRepo) ListChanges(ctx context.Context, studentID uuid.UUID) ([]*entity.CareerChange, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(changeColumns...).From(entsql.Table(tableCareerHistory)).
		Where(entsql.EQ("student_id", studentID)).
		OrderBy(entsql.Desc("change_date"), entsql.Desc("created_at"))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to list career changes", "student_id", studentID, "error", err)
		return nil, wrapDB(err, "list career changes")
	}
	defer rows.Close()
	var out []*entity.CareerChange
	for rows.Next() {
		var c entity.CareerChange
		if err := rows.Scan(&c.ID, &c.StudentID, &c.ChangeDate, &c.PreviousCareer, &c.NewCareer, &c.Reason, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, wrapDB(err, "scan career change")
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "list career changes")
	}
	return out, nil
}

func (r *careerRepo) DeleteChange(ctx context.Context, studentID, id uuid.UUID) error {
	q := entsql.Dialect(r.drv.Dialect()).Delete(tableCareerHistory).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("student_id", studentID)))
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to delete career change", "id", id, "error", err)
		return wrapDB(err, "delete career change")
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "진로 변경 이력을 찾을 수 없습니다.", common.ErrNotFound)
	}
	return nil
}
