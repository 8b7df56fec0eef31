package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
)

type StudentRepository interface {
	Create(ctx context.Context, s *entity.Student) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Student, error)
	ListByConsultant(ctx context.Context, consultantID uuid.UUID) ([]*entity.Student, error)
	Update(ctx context.Context, s *entity.Student) error
	Delete(ctx context.Context, id uuid.UUID) error
	// LastLoginID returns the highest student_login_id starting with prefix, or "".
	LastLoginID(ctx context.Context, prefix string) (string, error)
}

type studentRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewStudentRepository(drv *entsql.Driver, logger *slog.Logger) StudentRepository {
	return &studentRepo{
		drv:    drv,
		logger: logger,
	}
}

var studentColumns = []string{
	"id", "student_login_id", "access_code", "name", "grade", "enrollment_year", "graduation_year",
	"high_school_name", "student_phone", "parent_phone", "consultant_name", "created_by", "is_active",
	"created_at", "updated_at",
}

func scanStudent(rows *entsql.Rows) (*entity.Student, error) {
	var (
		s                  entity.Student
		enrolled, graduate sql.NullInt64
	)
	if err := rows.Scan(
		&s.ID, &s.StudentLoginID, &s.AccessCode, &s.Name, &s.Grade, &enrolled, &graduate,
		&s.HighSchoolName, &s.StudentPhone, &s.ParentPhone, &s.ConsultantName, &s.CreatedBy, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.EnrollmentYear = nullInt(enrolled)
	s.GraduationYear = nullInt(graduate)
	return &s, nil
}

func (r *studentRepo) Create(ctx context.Context, s *entity.Student) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	q := entsql.Dialect(r.drv.Dialect()).Insert(tableStudents).
		Columns(studentColumns...).
		Values(
			s.ID, s.StudentLoginID, s.AccessCode, s.Name, s.Grade, optInt(s.EnrollmentYear), optInt(s.GraduationYear),
			s.HighSchoolName, s.StudentPhone, s.ParentPhone, s.ConsultantName, s.CreatedBy, s.IsActive,
			s.CreatedAt, s.UpdatedAt,
		)
	if _, err := execBuilder(ctx, r.drv, q); err != nil {
		r.logger.Error("failed to create student", "name", s.Name, "created_by", s.CreatedBy, "error", err)
		return wrapDB(err, "create student")
	}
	return nil
}

func (r *studentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Student, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(studentColumns...).From(entsql.Table(tableStudents)).
		Where(entsql.EQ("id", id))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to get student", "student_id", id, "error", err)
		return nil, wrapDB(err, "get student")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapDB(err, "get student")
		}
		return nil, common.NewAppError("NOT_FOUND", "학생을 찾을 수 없습니다.", common.ErrNotFound)
	}
	s, err := scanStudent(rows)
	if err != nil {
		return nil, wrapDB(err, "scan student")
	}
	return s, nil
}

func (r *studentRepo) ListByConsultant(ctx context.Context, consultantID uuid.UUID) ([]*entity.Student, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select(studentColumns...).From(entsql.Table(tableStudents)).
		Where(entsql.EQ("created_by", consultantID)).
		OrderBy(entsql.Asc("name"), entsql.Asc("id"))
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to list students", "consultant_id", consultantID, "error", err)
		return nil, wrapDB(err, "list students")
	}
	defer rows.Close()
	var out []*entity.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, wrapDB(err, "scan student")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "list students")
	}
	return out, nil
}

func (r *studentRepo) Update(ctx context.Context, s *entity.Student) error {
	s.UpdatedAt = time.Now().UTC()
	q := entsql.Dialect(r.drv.Dialect()).Update(tableStudents).
		Set("student_login_id", s.StudentLoginID).
		Set("access_code", s.AccessCode).
		Set("name", s.Name).
		Set("grade", s.Grade).
		Set("high_school_name", s.HighSchoolName).
		Set("student_phone", s.StudentPhone).
		Set("parent_phone", s.ParentPhone).
		Set("consultant_name", s.ConsultantName).
		Set("is_active", s.IsActive).
		Set("updated_at", s.UpdatedAt).
		Where(entsql.EQ("id", s.ID))
	setOptInt(q, "enrollment_year", s.EnrollmentYear)
	setOptInt(q, "graduation_year", s.GraduationYear)
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to update student", "student_id", s.ID, "error", err)
		return wrapDB(err, "update student")
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "학생을 찾을 수 없습니다.", common.ErrNotFound)
	}
	return nil
}

// Delete removes the student; files, analyses and career rows cascade.
func (r *studentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	q := entsql.Dialect(r.drv.Dialect()).Delete(tableStudents).Where(entsql.EQ("id", id))
	n, err := execBuilder(ctx, r.drv, q)
	if err != nil {
		r.logger.Error("failed to delete student", "student_id", id, "error", err)
		return wrapDB(err, "delete student")
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "학생을 찾을 수 없습니다.", common.ErrNotFound)
	}
	return nil
}

func (r *studentRepo) LastLoginID(ctx context.Context, prefix string) (string, error) {
	q := entsql.Dialect(r.drv.Dialect()).Select("student_login_id").From(entsql.Table(tableStudents)).
		Where(entsql.HasPrefix("student_login_id", prefix)).
		OrderBy(entsql.Desc("student_login_id")).
		Limit(1)
	rows, err := queryBuilder(ctx, r.drv, q)
	if err != nil {
		return "", wrapDB(err, "last login id")
	}
	defer rows.Close()
	var id string
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return "", wrapDB(err, "last login id")
		}
	}
	return id, rows.Err()
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func setOptInt(q *entsql.UpdateBuilder, col string, v *int) {
	if v == nil {
		q.SetNull(col)
		return
	}
	q.Set(col, *v)
}
