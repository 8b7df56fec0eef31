package student

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/storage"
)

const maxKeywords = 3

var phonePattern = regexp.MustCompile(`^01[016789]-?\d{3,4}-?\d{4}$`)

// Service handles students and their career planning data.
type Service struct {
	students repository.StudentRepository
	files    repository.FileRepository
	career   repository.CareerRepository
	blobs    storage.BlobStore
	logger   *slog.Logger
}

func NewService(
	students repository.StudentRepository,
	files repository.FileRepository,
	career repository.CareerRepository,
	blobs storage.BlobStore,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{students: students, files: files, career: career, blobs: blobs, logger: logger}
}

// CreateStudentRequest represents student creation parameters.
type CreateStudentRequest struct {
	Name           string `json:"name"`
	SchoolLevel    string `json:"school_level"` // middle | high
	Grade          string `json:"grade"`
	ConsultantName string `json:"consultant_name"`
	HighSchoolName string `json:"high_school_name"`
	EnrollmentYear *int   `json:"enrollment_year"`
}

// UpdateStudentRequest carries only the fields being changed.
type UpdateStudentRequest struct {
	Name           *string `json:"name"`
	Grade          *string `json:"grade"`
	EnrollmentYear *int    `json:"enrollment_year"`
	GraduationYear *int    `json:"graduation_year"`
	HighSchoolName *string `json:"high_school_name"`
	StudentPhone   *string `json:"student_phone"`
	ParentPhone    *string `json:"parent_phone"`
	ConsultantName *string `json:"consultant_name"`
	IsActive       *bool   `json:"is_active"`
}

func (s *Service) Create(ctx context.Context, consultantID uuid.UUID, req CreateStudentRequest) (*entity.Student, error) {
	v := common.NewValidator()
	v.Field("name", req.Name, common.Required, common.MaxLength(50))
	v.Field("school_level", req.SchoolLevel, common.OneOf("", "middle", "high"))
	v.Field("grade", req.Grade, common.Required, common.OneOf("1", "2", "3"))
	if err := v.Error(); err != nil {
		return nil, err
	}

	loginID, err := s.nextLoginID(ctx, req.SchoolLevel, req.Grade)
	if err != nil {
		return nil, err
	}
	st := &entity.Student{
		StudentLoginID: loginID,
		Name:           strings.TrimSpace(req.Name),
		Grade:          req.Grade,
		EnrollmentYear: req.EnrollmentYear,
		HighSchoolName: strings.TrimSpace(req.HighSchoolName),
		ConsultantName: strings.TrimSpace(req.ConsultantName),
		CreatedBy:      consultantID,
		IsActive:       true,
	}
	if err := s.students.Create(ctx, st); err != nil {
		return nil, err
	}
	s.logger.Info("student.created", "student_id", st.ID, "login_id", loginID, "consultant_id", consultantID)
	return st, nil
}

// nextLoginID builds "h02" + a three digit sequence, e.g. h02007.
func (s *Service) nextLoginID(ctx context.Context, level, grade string) (string, error) {
	prefix := "h"
	if level == "middle" {
		prefix = "m"
	}
	prefix += "0" + grade
	last, err := s.students.LastLoginID(ctx, prefix)
	if err != nil {
		return "", err
	}
	seq := 1
	if len(last) > len(prefix) {
		if n, err := strconv.Atoi(last[len(prefix):]); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

// Get returns the student when consultantID owns it.
func (s *Service) Get(ctx context.Context, consultantID, id uuid.UUID) (*entity.Student, error) {
	st, err := s.students.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.CreatedBy != consultantID {
		return nil, common.NewAppError("FORBIDDEN", "접근 권한이 없습니다.", common.ErrForbidden)
	}
	return st, nil
}

// List returns the consultant's students, active ones first.
func (s *Service) List(ctx context.Context, consultantID uuid.UUID) ([]*entity.Student, error) {
	list, err := s.students.ListByConsultant(ctx, consultantID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(list, func(a, b *entity.Student) int {
		switch {
		case a.IsActive == b.IsActive:
			return 0
		case a.IsActive:
			return -1
		default:
			return 1
		}
	})
	if list == nil {
		list = []*entity.Student{}
	}
	return list, nil
}

func (s *Service) Update(ctx context.Context, consultantID, id uuid.UUID, req UpdateStudentRequest) (*entity.Student, error) {
	st, err := s.Get(ctx, consultantID, id)
	if err != nil {
		return nil, err
	}

	v := common.NewValidator()
	if req.Name != nil {
		v.Field("name", *req.Name, common.Required, common.MaxLength(50))
		st.Name = strings.TrimSpace(*req.Name)
	}
	if req.Grade != nil {
		v.Field("grade", *req.Grade, common.Required, common.OneOf("1", "2", "3"))
		st.Grade = *req.Grade
	}
	if req.StudentPhone != nil {
		v.Field("student_phone", *req.StudentPhone, phone)
		st.StudentPhone = strings.TrimSpace(*req.StudentPhone)
	}
	if req.ParentPhone != nil {
		v.Field("parent_phone", *req.ParentPhone, phone)
		st.ParentPhone = strings.TrimSpace(*req.ParentPhone)
	}
	if err := v.Error(); err != nil {
		return nil, err
	}
	if req.EnrollmentYear != nil {
		st.EnrollmentYear = req.EnrollmentYear
	}
	if req.GraduationYear != nil {
		st.GraduationYear = req.GraduationYear
	}
	if req.HighSchoolName != nil {
		st.HighSchoolName = strings.TrimSpace(*req.HighSchoolName)
	}
	if req.ConsultantName != nil {
		st.ConsultantName = strings.TrimSpace(*req.ConsultantName)
	}
	if req.IsActive != nil {
		st.IsActive = *req.IsActive
	}

	if err := s.students.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Delete removes the student with every record, then the stored documents.
func (s *Service) Delete(ctx context.Context, consultantID, id uuid.UUID) error {
	if _, err := s.Get(ctx, consultantID, id); err != nil {
		return err
	}
	files, err := s.files.ListByStudent(ctx, id)
	if err != nil {
		return err
	}
	if err := s.students.Delete(ctx, id); err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, f := range files {
		if f.StoragePath == "" || seen[f.StoragePath] {
			continue
		}
		seen[f.StoragePath] = true
		if err := s.blobs.Delete(ctx, f.StoragePath); err != nil {
			s.logger.Warn("student.delete.blob_failed", "student_id", id, "storage_path", f.StoragePath, "error", err)
		}
	}
	s.logger.Info("student.deleted", "student_id", id, "files", len(files), "documents", len(seen))
	return nil
}

// CareerGoals returns the saved goals, or an empty form when none exist yet.
func (s *Service) CareerGoals(ctx context.Context, consultantID, studentID uuid.UUID) (*entity.CareerGoals, error) {
	if _, err := s.Get(ctx, consultantID, studentID); err != nil {
		return nil, err
	}
	g, err := s.career.GetGoals(ctx, studentID)
	if errors.Is(err, common.ErrNotFound) {
		return &entity.CareerGoals{StudentID: studentID, FieldKeywords: []string{}}, nil
	}
	return g, err
}

func (s *Service) SaveCareerGoals(ctx context.Context, consultantID, studentID uuid.UUID, g *entity.CareerGoals) (*entity.CareerGoals, error) {
	if _, err := s.Get(ctx, consultantID, studentID); err != nil {
		return nil, err
	}
	if err := validateGoals(g); err != nil {
		return nil, err
	}
	g.StudentID = studentID
	if err := s.career.UpsertGoals(ctx, g); err != nil {
		return nil, err
	}
	return s.career.GetGoals(ctx, studentID)
}

func validateGoals(g *entity.CareerGoals) error {
	if !constants.ValidTargetTier(g.TargetTier) {
		return common.NewAppError("VALIDATION_ERROR", "목표 대학 수준이 올바르지 않습니다.", common.ErrValidation)
	}
	ratios := []int{g.AdmissionHakjongRatio, g.AdmissionGyogwaRatio, g.AdmissionNonsulRatio, g.AdmissionJeongsiRatio}
	total := 0
	for _, r := range ratios {
		if r < 0 || r > 100 {
			return common.NewAppError("VALIDATION_ERROR", "전형 유형 비율은 0~100 사이여야 합니다.", common.ErrValidation)
		}
		total += r
	}
	if total != 0 && total != 100 {
		return common.NewAppError("VALIDATION_ERROR", "전형 유형 비율의 합이 100%가 되어야 합니다.", common.ErrValidation)
	}

	keywords := make([]string, 0, len(g.FieldKeywords))
	for _, k := range g.FieldKeywords {
		k = strings.TrimSpace(k)
		if k != "" && !slices.Contains(keywords, k) {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) > maxKeywords {
		return common.NewAppError("VALIDATION_ERROR", "키워드는 최대 3개까지 입력 가능합니다.", common.ErrValidation)
	}
	g.FieldKeywords = keywords
	return nil
}

func (s *Service) CareerHistory(ctx context.Context, consultantID, studentID uuid.UUID) ([]*entity.CareerChange, error) {
	if _, err := s.Get(ctx, consultantID, studentID); err != nil {
		return nil, err
	}
	list, err := s.career.ListChanges(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*entity.CareerChange{}
	}
	return list, nil
}

func (s *Service) AddCareerChange(ctx context.Context, consultantID, studentID uuid.UUID, c *entity.CareerChange) (*entity.CareerChange, error) {
	if _, err := s.Get(ctx, consultantID, studentID); err != nil {
		return nil, err
	}
	v := common.NewValidator()
	v.Field("change_date", c.ChangeDate, common.Required, date)
	v.Field("new_career", c.NewCareer, common.Required, common.MaxLength(200))
	if err := v.Error(); err != nil {
		return nil, err
	}
	c.ID = uuid.Nil
	c.StudentID = studentID
	c.PreviousCareer = strings.TrimSpace(c.PreviousCareer)
	c.NewCareer = strings.TrimSpace(c.NewCareer)
	c.Reason = strings.TrimSpace(c.Reason)
	if err := s.career.AddChange(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) DeleteCareerChange(ctx context.Context, consultantID, studentID, id uuid.UUID) error {
	if _, err := s.Get(ctx, consultantID, studentID); err != nil {
		return err
	}
	return s.career.DeleteChange(ctx, studentID, id)
}

func phone(field string, value interface{}) *common.ValidationError {
	s, _ := value.(string)
	s = strings.TrimSpace(s)
	if s == "" || phonePattern.MatchString(s) {
		return nil
	}
	return &common.ValidationError{Field: field, Value: value, Message: "must be a mobile number like 010-1234-5678"}
}

func date(field string, value interface{}) *common.ValidationError {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return &common.ValidationError{Field: field, Value: value, Message: "must be YYYY-MM-DD"}
	}
	return nil
}
