package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
)

const (
	recordsSheet = "활동기록"
	studentSheet = "학생정보"
)

// Service produces XLSX bytes for a student's completed activity records.
type Service struct {
	students repository.StudentRepository
	files    repository.FileRepository
	analyses repository.AnalysisRepository
	career   repository.CareerRepository
	logger   *slog.Logger
}

func NewService(
	students repository.StudentRepository,
	files repository.FileRepository,
	analyses repository.AnalysisRepository,
	career repository.CareerRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{students: students, files: files, analyses: analyses, career: career, logger: logger}
}

// Row is one exported activity line.
type Row struct {
	Semester   string
	Grade      string
	Category   string
	Activity   string
	Evaluation string
	Topic      string
	FollowUp   string
	Reading    string
	sortOrder  int
	createdAt  time.Time
}

var categorySort = map[string]int{"자율": 0, "동아리": 1, "진로": 2, "봉사": 3}

// BuildRows keeps completed records only and orders them by semester, then
// 자율/동아리/진로/봉사 before subjects, then creation time.
func BuildRows(files []*entity.UploadedFile, analyses []*entity.FileAnalysis) []Row {
	byFile := make(map[uuid.UUID]*entity.FileAnalysis, len(analyses))
	for _, a := range analyses {
		byFile[a.FileID] = a
	}

	rows := make([]Row, 0, len(files))
	for _, f := range files {
		if f.AnalysisStatus != string(constants.StatusComplete) {
			continue
		}
		a := byFile[f.ID]
		if a == nil {
			a = &entity.FileAnalysis{}
		}

		var category, activity string
		if f.CategoryMain == string(constants.Changche) {
			if f.ChangcheType != nil {
				category = strings.TrimSuffix(*f.ChangcheType, "활동")
			}
			activity = f.ChangcheSub
		} else {
			category = f.GyogwaSubjectName
			if category == "" {
				category = "교과"
			}
			activity = f.GyogwaSub
		}

		order, ok := categorySort[category]
		if !ok {
			order = 100
		}
		rows = append(rows, Row{
			Semester:   f.Semester,
			Grade:      constants.SemesterGrade(f.Semester),
			Category:   category,
			Activity:   activity,
			Evaluation: a.EvaluationCompetency,
			Topic:      joinNonEmpty(" - ", a.Title, a.ActivityContent),
			FollowUp:   joinNonEmpty("\n", a.Conclusion, a.ResearchPlan),
			Reading:    a.ReadingActivities,
			sortOrder:  order,
			createdAt:  f.CreatedAt,
		})
	}

	slices.SortStableFunc(rows, func(x, y Row) int {
		if d := constants.SemesterOrder(x.Semester) - constants.SemesterOrder(y.Semester); d != 0 {
			return d
		}
		if d := x.sortOrder - y.sortOrder; d != 0 {
			return d
		}
		return x.createdAt.Compare(y.createdAt)
	})
	return rows
}

// ExportStudentXLSX returns the workbook and a download file name.
func (s *Service) ExportStudentXLSX(ctx context.Context, consultantID, studentID uuid.UUID) (string, []byte, error) {
	start := time.Now()

	st, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return "", nil, err
	}
	if st.CreatedBy != consultantID {
		return "", nil, common.NewAppError("FORBIDDEN", "접근 권한이 없습니다.", common.ErrForbidden)
	}
	files, err := s.files.ListByStudent(ctx, studentID)
	if err != nil {
		return "", nil, fmt.Errorf("query files: %w", err)
	}
	analyses, err := s.analyses.ListByStudent(ctx, studentID)
	if err != nil {
		return "", nil, fmt.Errorf("query analyses: %w", err)
	}
	var career string
	if g, err := s.career.GetGoals(ctx, studentID); err == nil {
		career = strings.TrimSpace(g.CareerField1st + " " + g.CareerDetail1st)
	} else if !errors.Is(err, common.ErrNotFound) {
		return "", nil, fmt.Errorf("query career goals: %w", err)
	}

	rows := BuildRows(files, analyses)
	data, err := render(st, career, rows)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("export.xlsx.ok",
		"student_id", studentID.String(),
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	name := fmt.Sprintf("%s_생기부_%s.xlsx", st.Name, time.Now().Format("20060102"))
	return name, data, nil
}

func render(st *entity.Student, career string, rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return nil, err
	}
	headers := []string{"학기", "학년", "창체/교과세특", "활동/내용", "평가", "주제/구체적인 내용", "후속활동, 소감", "독서활동"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(recordsSheet, cell, h)
	}
	for i, r := range rows {
		values := []string{r.Semester, r.Grade, r.Category, r.Activity, r.Evaluation, r.Topic, r.FollowUp, r.Reading}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(recordsSheet, cell, v)
		}
	}
	_ = f.SetColWidth(recordsSheet, "A", "B", 8)
	_ = f.SetColWidth(recordsSheet, "C", "D", 14)
	_ = f.SetColWidth(recordsSheet, "E", "E", 18)
	_ = f.SetColWidth(recordsSheet, "F", "F", 60)
	_ = f.SetColWidth(recordsSheet, "G", "H", 36)

	if _, err := f.NewSheet(studentSheet); err != nil {
		return nil, err
	}
	info := [][2]string{
		{"학교", st.HighSchoolName},
		{"이름", st.Name},
		{"학년", st.Grade},
		{"진로희망", career},
	}
	for i, kv := range info {
		_ = f.SetCellValue(studentSheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(studentSheet, fmt.Sprintf("B%d", i+1), kv[1])
	}

	idx, _ := f.GetSheetIndex(recordsSheet)
	f.SetActiveSheet(idx)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
