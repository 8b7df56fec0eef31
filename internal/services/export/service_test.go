package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func file(sem, main string, changche *string, subject string, created time.Time, status constants.AnalysisStatus) *entity.UploadedFile {
	f := &entity.UploadedFile{ID: uuid.New(), AnalysisStatus: string(status), CreatedAt: created}
	f.Semester = sem
	f.CategoryMain = main
	f.ChangcheType = changche
	f.GyogwaSubjectName = subject
	return f
}

func TestBuildRowsOrdering(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	files := []*entity.UploadedFile{
		file("2-1", "교과세특", nil, "화학", t0, constants.StatusComplete),
		file("1-2", "창체활동", ptr("봉사활동"), "", t0, constants.StatusComplete),
		file("1-2", "창체활동", ptr("자율활동"), "", t0.Add(time.Hour), constants.StatusComplete),
		file("1-2", "창체활동", ptr("자율활동"), "", t0, constants.StatusComplete),
		file("1-1", "창체활동", ptr("진로활동"), "", t0, constants.StatusFailed),
		file("", "교과세특", nil, "", t0, constants.StatusComplete),
	}
	analyses := []*entity.FileAnalysis{
		{FileID: files[3].ID, AnalysisContent: entity.AnalysisContent{Title: "회의", ActivityContent: "진행", Conclusion: "소감", ResearchPlan: "계획"}},
	}

	rows := BuildRows(files, analyses)
	require.Len(t, rows, 5)

	got := make([]string, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.Semester+"/"+r.Category)
	}
	assert.Equal(t, []string{"1-2/자율", "1-2/자율", "1-2/봉사", "2-1/화학", "/교과"}, got)

	assert.Equal(t, "회의 - 진행", rows[0].Topic)
	assert.Equal(t, "소감\n계획", rows[0].FollowUp)
	assert.Equal(t, "1학년", rows[0].Grade)
	assert.Empty(t, rows[1].Topic)
}

func TestExportStudentXLSX(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	drv, err := repository.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, repository.Migrate(ctx, drv, logger))

	students := repository.NewStudentRepository(drv, logger)
	files := repository.NewFileRepository(drv, logger)
	analyses := repository.NewAnalysisRepository(drv, logger)
	career := repository.NewCareerRepository(drv, logger)
	svc := NewService(students, files, analyses, career, logger)

	owner := uuid.New()
	st := &entity.Student{Name: "박민준", Grade: "2", HighSchoolName: "한빛고", CreatedBy: owner, IsActive: true}
	require.NoError(t, students.Create(ctx, st))
	f := &entity.UploadedFile{StudentID: st.ID, UploadedBy: owner, FileName: "a.pdf", StoragePath: "p/a.pdf",
		AnalysisStatus: string(constants.StatusComplete)}
	f.Semester = "2-1"
	f.CategoryMain = "창체활동"
	f.ChangcheType = ptr("동아리활동")
	f.ChangcheSub = "탐구활동"
	require.NoError(t, files.Create(ctx, f))
	require.NoError(t, analyses.Create(ctx, &entity.FileAnalysis{FileID: f.ID, StudentID: st.ID,
		AnalysisContent: entity.AnalysisContent{Title: "로봇 제작", ActivityContent: "센서 회로 설계", EvaluationCompetency: "탐구역량"}}))
	require.NoError(t, career.UpsertGoals(ctx, &entity.CareerGoals{StudentID: st.ID, CareerField1st: "공학", CareerDetail1st: "로봇공학자"}))

	name, data, err := svc.ExportStudentXLSX(ctx, owner, st.ID)
	require.NoError(t, err)
	assert.Contains(t, name, "박민준")

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()

	rows, err := wb.GetRows(recordsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "학기", rows[0][0])
	assert.Equal(t, []string{"2-1", "2학년", "동아리", "탐구활동", "탐구역량", "로봇 제작 - 센서 회로 설계"}, rows[1][:6])

	career2, err := wb.GetCellValue(studentSheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "공학 로봇공학자", career2)

	_, _, err = svc.ExportStudentXLSX(ctx, uuid.New(), st.ID)
	require.ErrorIs(t, err, common.ErrForbidden)
}
