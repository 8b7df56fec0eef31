package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
)

type FileRepository interface {
	Create(ctx context.Context, f *entity.UploadedFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.UploadedFile, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*entity.UploadedFile, error)
	UpdateClassification(ctx context.Context, id uuid.UUID, c entity.Classification) error
	SetStatus(ctx context.Context, id uuid.UUID, status constants.AnalysisStatus, errMsg *string) error
	CountByStoragePath(ctx context.Context, path string) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByStoragePath(ctx context.Context, studentID uuid.UUID, path string) (int64, error)
	MarkStuckFailed(ctx context.Context, before time.Time, msg string) (int64, error)
}

type fileRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewFileRepository(drv *entsql.Driver, logger *slog.Logger) FileRepository {
	return &fileRepo{
		drv:    drv,
		logger: logger,
	}
}

var fileColumns = []string{
	"id", "student_id", "uploaded_by", "file_name", "file_type", "mime_type", "file_size_bytes",
	"storage_path", "semester", "category_main", "changche_type", "changche_sub", "gyogwa_type",
	"gyogwa_sub", "gyogwa_subject_name", "bongsa_hours", "analysis_status", "analysis_error",
	"created_at", "updated_at",
}

func scanFile(rows *entsql.Rows) (*entity.UploadedFile, error) {
	var (
		f                entity.UploadedFile
		changche, gyogwa sql.NullString
		analysisErr      sql.NullString
		bongsa           sql.NullFloat64
	)
	if err := rows.Scan(
		&f.ID, &f.StudentID, &f.UploadedBy, &f.FileName, &f.FileType, &f.MimeType, &f.FileSizeBytes,
		&f.StoragePath, &f.Semester, &f.CategoryMain, &changche, &f.ChangcheSub, &gyogwa,
		&f.GyogwaSub, &f.GyogwaSubjectName, &bongsa, &f.AnalysisStatus, &analysisErr,
		&f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	f.ChangcheType = nullString(changche)
	f.GyogwaType = nullString(gyogwa)
	f.AnalysisError = nullString(analysisErr)
	if bongsa.Valid {
		h := bongsa.Float64
		f.BongsaHours = &h
	}
	return &f, nil
}

func (r *fileRepo) Create(ctx context.Context, f *entity.UploadedFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	if f.AnalysisStatus == "" {
		f.AnalysisStatus = string(constants.StatusPending)
	}
	c := f.Classification.Normalize()
	f.Classification = c

	q := entsql.Dialect(r.drv.Dialect()).Insert(tableFiles).
		Columns(fileColumns...).
		Values(
			f.ID, f.StudentID, f.UploadedBy, f.FileName, f.FileType, f.MimeType, f.FileSizeBytes,
			f.StoragePath, c.Semester, c.CategoryMain, optString(c.ChangcheType), c.ChangcheSub, optString(c.GyogwaType),
			c.GyogwaSub, c.GyogwaSubjectName, optFloat(c.BongsaHours), f.AnalysisStatus, optString(f.AnalysisError),
			f.CreatedAt, f.UpdatedAt,
		)
	if _, err := execBuilder(ctx, r.drv, q); err != nil {
		r.logger.Error("failed to create uploaded file", "student_id", f.StudentID, "file_name", f.FileName, "error", err)
		return wrapDB(err, "create uploaded file")
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.UploadedFile, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(fileColumns...).From(entsql.Table(tableFiles)).
		Where(entsql.EQ("id", id))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to get uploaded file", "file_id", id, "error", err)
		return nil, wrapDB(err, "get uploaded file")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapDB(err, "get uploaded file")
		}
		return nil, common.NewAppError("NOT_FOUND", "파일을 찾을 수 없습니다.", common.ErrNotFound)
	}
	f, err := scanFile(rows)
	if err != nil {
		return nil, wrapDB(err, "scan uploaded file")
	}
	return f, nil
}

func (r *fileRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*entity.UploadedFile, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(fileColumns...).From(entsql.Table(tableFiles)).
		Where(entsql.EQ("student_id", studentID)).
		OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to list uploaded files", "student_id", studentID, "error", err)
		return nil, wrapDB(err, "list uploaded files")
	}
	defer rows.Close()
	var out []*entity.UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, wrapDB(err, "scan uploaded file")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "list uploaded files")
	}
	return out, nil
}

// UpdateClassification overwrites every taxonomy field after normalizing c.
func (r *fileRepo) UpdateClassification(ctx context.Context, id uuid.UUID, c entity.Classification) error {
	c = c.Normalize()
	q := entsql.Dialect(r.drv.Dialect()).Update(tableFiles).
		Set("semester", c.Semester).
		Set("category_main", c.CategoryMain).
		Set("changche_sub", c.ChangcheSub).
		Set("gyogwa_sub", c.GyogwaSub).
		Set("gyogwa_subject_name", c.GyogwaSubjectName).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	setOptString(q, "changche_type", c.ChangcheType)
	setOptString(q, "gyogwa_type", c.GyogwaType)
	if c.BongsaHours != nil {
		q.Set("bongsa_hours", *c.BongsaHours)
	} else {
		q.SetNull("bongsa_hours")
	}
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to update classification", "file_id", id, "error", err)
		return wrapDB(err, "update classification")
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "파일을 찾을 수 없습니다.", common.ErrNotFound)
	}
	return nil
}

// SetStatus records the analysis state. 실패 requires a message; every other
// status clears the stored error.
func (r *fileRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.AnalysisStatus, errMsg *string) error {
	if status == constants.StatusFailed && (errMsg == nil || *errMsg == "") {
		return common.NewAppError("VALIDATION_ERROR", "실패 상태에는 오류 내용이 필요합니다.", common.ErrValidation)
	}
	q := entsql.Dialect(r.drv.Dialect()).Update(tableFiles).
		Set("analysis_status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	if status == constants.StatusFailed {
		q.Set("analysis_error", *errMsg)
	} else {
		q.SetNull("analysis_error")
	}
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to set analysis status", "file_id", id, "status", status, "error", err)
		return wrapDB(err, "set analysis status")
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "파일을 찾을 수 없습니다.", common.ErrNotFound)
	}
	return nil
}

func (r *fileRepo) CountByStoragePath(ctx context.Context, path string) (int, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(entsql.Count("*")).From(entsql.Table(tableFiles)).
		Where(entsql.EQ("storage_path", path))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		return 0, wrapDB(err, "count by storage path")
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, wrapDB(err, "count by storage path")
		}
	}
	return n, rows.Err()
}

// Delete removes one record; its analysis goes with it through the cascade.
func (r *fileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	q := entsql.Dialect(r.drv.Dialect()).Delete(tableFiles).Where(entsql.EQ("id", id))
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to delete uploaded file", "file_id", id, "error", err)
		return wrapDB(err, "delete uploaded file")
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "파일을 찾을 수 없습니다.", common.ErrNotFound)
	}
	return nil
}

// DeleteByStoragePath removes every sibling record of one physical document.
func (r *fileRepo) DeleteByStoragePath(ctx context.Context, studentID uuid.UUID, path string) (int64, error) {
	q := entsql.Dialect(r.drv.Dialect()).Delete(tableFiles).
		Where(entsql.And(entsql.EQ("student_id", studentID), entsql.EQ("storage_path", path)))
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to delete by storage path", "student_id", studentID, "storage_path", path, "error", err)
		return 0, wrapDB(err, "delete by storage path")
	}
	return n, nil
}

// MarkStuckFailed fails every record left in 분석중 since before.
func (r *fileRepo) MarkStuckFailed(ctx context.Context, before time.Time, msg string) (int64, error) {
	q := entsql.Dialect(r.drv.Dialect()).Update(tableFiles).
		Set("analysis_status", string(constants.StatusFailed)).
		Set("analysis_error", msg).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("analysis_status", string(constants.StatusAnalyzing)),
			entsql.LT("updated_at", before.UTC()),
		))
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to mark stuck analyses", "before", before, "error", err)
		return 0, wrapDB(err, "mark stuck failed")
	}
	return n, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func setOptString(q *entsql.UpdateBuilder, col string, v *string) {
	if v == nil {
		q.SetNull(col)
		return
	}
	q.Set(col, *v)
}

func wrapDB(err error, op string) error {
	return common.NewAppError("DATABASE_ERROR", op, fmt.Errorf("%w: %v", common.ErrDatabase, err))
}
