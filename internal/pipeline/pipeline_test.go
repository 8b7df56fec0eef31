package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/storage"
)

const twoEntries = `{"e":[` +
	`{"s":"2-1","c":"창","ct":"봉","bh":12,"t":"지역아동센터 학습 멘토링","ac":"초등학생 수학 학습을 도왔다.","co":"꾸준함을 배웠다."},` +
	`{"s":"2-1","c":"교","gt":"수","gs":"실험","gn":"화학","bh":3,"t":"산화환원 적정 실험","ac":"적정 곡선을 분석했다.","ec":"탐구역량"}` +
	`]}`

const oneEntry = `{"e":[{"s":"1-2","c":"창","ct":"동","cs":"탐구활동","t":"천문 동아리 관측","ac":"목성 위성을 관측했다."}]}`

type scriptedCompleter struct {
	mu    sync.Mutex
	resp  []llm.Completion
	err   error
	calls int
}

func (s *scriptedCompleter) Complete(_ context.Context, _ llm.CompletionRequest) (llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return llm.Completion{}, s.err
	}
	if len(s.resp) == 0 {
		return llm.Completion{}, common.NewAppError("EMPTY_RESPONSE", "응답 없음", common.ErrEmptyResponse)
	}
	r := s.resp[0]
	if len(s.resp) > 1 {
		s.resp = s.resp[1:]
	}
	return r, nil
}

func (s *scriptedCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type env struct {
	drv      *entsql.Driver
	proc     *Processor
	llm      *scriptedCompleter
	students repository.StudentRepository
	files    repository.FileRepository
	analyses repository.AnalysisRepository
	storeDir string
	owner    uuid.UUID
	student  *entity.Student
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newEnv(t *testing.T, responses ...string) *env {
	t.Helper()
	logger := testLogger()
	drv, err := repository.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, repository.Migrate(context.Background(), drv, logger))

	dir := t.TempDir()
	blobs, err := storage.NewFSStore(dir, logger)
	require.NoError(t, err)

	sc := &scriptedCompleter{}
	for _, r := range responses {
		sc.resp = append(sc.resp, llm.Completion{Content: r, FinishReason: "stop"})
	}

	e := &env{
		drv:      drv,
		llm:      sc,
		students: repository.NewStudentRepository(drv, logger),
		files:    repository.NewFileRepository(drv, logger),
		analyses: repository.NewAnalysisRepository(drv, logger),
		storeDir: dir,
		owner:    uuid.New(),
	}
	e.proc = NewProcessor(logger, time.Minute, drv, e.students, e.files, e.analyses, blobs,
		document.NewDecoder(document.Config{}, logger), llm.NewExtractor(sc, 0, 16000, logger))

	year := 2024
	e.student = &entity.Student{Name: "이서연", Grade: "2", EnrollmentYear: &year, CreatedBy: e.owner, IsActive: true}
	require.NoError(t, e.students.Create(context.Background(), e.student))
	return e
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body bytes.Buffer
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func (e *env) upload(t *testing.T) MaterializeResult {
	t.Helper()
	res, err := e.proc.Analyze(context.Background(), AnalyzeRequest{
		ConsultantID: e.owner,
		StudentID:    e.student.ID,
		FileName:     "활동보고서.docx",
		Data:         buildDOCX(t, "2학년 1학기 봉사활동 보고서", "화학 수행평가 보고서"),
	})
	require.NoError(t, err)
	return res
}

func countBlobs(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	}))
	return n
}

func TestAnalyzeMaterializesEveryEntry(t *testing.T) {
	e := newEnv(t, twoEntries)
	res := e.upload(t)

	require.Equal(t, 2, res.Count)
	require.Len(t, res.Files, 2)
	require.Len(t, res.Analyses, 2)
	assert.Empty(t, res.Failures)
	assert.Equal(t, res.Files[0].StoragePath, res.Files[1].StoragePath)
	assert.Equal(t, 1, countBlobs(t, e.storeDir))

	ctx := context.Background()
	f0, err := e.files.GetByID(ctx, res.Files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.StatusComplete), f0.AnalysisStatus)
	assert.Equal(t, "docx", f0.FileType)
	assert.Equal(t, "창체활동", f0.CategoryMain)
	require.NotNil(t, f0.ChangcheType)
	assert.Equal(t, "봉사활동", *f0.ChangcheType)
	require.NotNil(t, f0.BongsaHours)
	assert.Equal(t, 12.0, *f0.BongsaHours)

	f1, err := e.files.GetByID(ctx, res.Files[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "교과세특", f1.CategoryMain)
	assert.Nil(t, f1.BongsaHours, "service hours only on 봉사활동 records")
	assert.Nil(t, f1.ChangcheType)
	assert.Equal(t, "화학", f1.GyogwaSubjectName)

	a0, err := e.analyses.GetByFileID(ctx, res.Files[0].ID)
	require.NoError(t, err)
	assert.Contains(t, a0.RawText, "봉사활동 보고서")
	assert.Equal(t, "지역아동센터 학습 멘토링", a0.Title)
	a1, err := e.analyses.GetByFileID(ctx, res.Files[1].ID)
	require.NoError(t, err)
	assert.Empty(t, a1.RawText, "raw text is kept on the first entry only")
	assert.Equal(t, "탐구역량", a1.EvaluationCompetency)
}

func TestAnalyzeHintsFillEmptyFields(t *testing.T) {
	e := newEnv(t, `{"e":[{"c":"창","t":"학급 회의 진행","ac":"안건을 정리했다."}]}`)
	changche := "자율활동"
	res, err := e.proc.Analyze(context.Background(), AnalyzeRequest{
		ConsultantID: e.owner,
		StudentID:    e.student.ID,
		FileName:     "report.docx",
		Data:         buildDOCX(t, "학급 회의"),
		Hints:        entity.Classification{Semester: "1-2", ChangcheType: &changche, ChangcheSub: "학급자치"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	f := res.Files[0]
	assert.Equal(t, "1-2", f.Semester)
	require.NotNil(t, f.ChangcheType)
	assert.Equal(t, "자율활동", *f.ChangcheType)
	assert.Equal(t, "학급자치", f.ChangcheSub)
}

func TestAnalyzeRecoversTruncatedResponse(t *testing.T) {
	e := newEnv(t)
	cut := `{"e":[{"s":"1-1","c":"창","ct":"자","t":"A","ac":"a"},{"s":"1-1","c":"창","ct":"진","t":"B","ac":"b"},{"s":"1-1","c":"교","t":"C","ac":"잘린`
	e.llm.resp = []llm.Completion{{Content: cut, FinishReason: "length"}}

	res := e.upload(t)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "A", res.Analyses[0].Title)
	assert.Equal(t, "B", res.Analyses[1].Title)
}

func TestAnalyzeForbiddenMakesNoModelCall(t *testing.T) {
	e := newEnv(t, twoEntries)
	_, err := e.proc.Analyze(context.Background(), AnalyzeRequest{
		ConsultantID: uuid.New(),
		StudentID:    e.student.ID,
		FileName:     "report.docx",
		Data:         buildDOCX(t, "내용"),
	})
	require.ErrorIs(t, err, common.ErrForbidden)
	assert.Zero(t, e.llm.Calls())
	assert.Zero(t, countBlobs(t, e.storeDir))
}

func TestAnalyzeRejectsUnsupportedFormatBeforeModel(t *testing.T) {
	e := newEnv(t, twoEntries)
	_, err := e.proc.Analyze(context.Background(), AnalyzeRequest{
		ConsultantID: e.owner,
		StudentID:    e.student.ID,
		FileName:     "notes.txt",
		Data:         []byte("hello"),
	})
	require.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.Zero(t, e.llm.Calls())
}

func TestAnalyzeModelErrorWritesNothing(t *testing.T) {
	e := newEnv(t)
	e.llm.err = &common.ProviderError{Status: 500, Body: "upstream"}

	_, err := e.proc.Analyze(context.Background(), AnalyzeRequest{
		ConsultantID: e.owner,
		StudentID:    e.student.ID,
		FileName:     "report.docx",
		Data:         buildDOCX(t, "내용"),
	})
	require.ErrorIs(t, err, common.ErrProviderError)

	list, err := e.files.ListByStudent(context.Background(), e.student.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, countBlobs(t, e.storeDir))
}

func TestAnalyzeNoEntries(t *testing.T) {
	e := newEnv(t, `{"e":[]}`)
	_, err := e.proc.Analyze(context.Background(), AnalyzeRequest{
		ConsultantID: e.owner,
		StudentID:    e.student.ID,
		FileName:     "report.docx",
		Data:         buildDOCX(t, "내용"),
	})
	require.ErrorIs(t, err, common.ErrNoEntriesExtracted)
	assert.Zero(t, countBlobs(t, e.storeDir))
}

func TestMaterializeSkipsFailedEntry(t *testing.T) {
	e := newEnv(t)
	m := NewMaterializer(e.drv, e.files, e.analyses, testLogger())
	doc := Document{StudentID: e.student.ID, UploadedBy: e.owner, FileName: "a.pdf", FileType: "pdf", StoragePath: "x/a.pdf"}

	res := m.Materialize(context.Background(), MaterializeInput{
		Document: doc,
		Entries: []llm.Entry{
			{AnalysisContent: entity.AnalysisContent{Title: "first", ActivityContent: "one"}},
		},
		RawText: "원문",
	})
	require.Equal(t, 1, res.Count)

	// An unknown student violates the foreign key; the entry is reported, not fatal.
	doc.StudentID = uuid.New()
	res = m.Materialize(context.Background(), MaterializeInput{
		Document: doc,
		Entries:  []llm.Entry{{AnalysisContent: entity.AnalysisContent{Title: "orphan", ActivityContent: "x"}}},
		RawText:  "원문",
	})
	assert.Zero(t, res.Count)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "orphan", res.Failures[0].Title)
}

type failFirstCreate struct {
	repository.FileRepository
	mu     sync.Mutex
	failed bool
}

func (f *failFirstCreate) Create(ctx context.Context, file *entity.UploadedFile) error {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return common.WrapError(common.ErrDatabase, "insert uploaded file")
	}
	return f.FileRepository.Create(ctx, file)
}

func TestMaterializeRawTextMovesPastFailedEntry(t *testing.T) {
	e := newEnv(t)
	m := NewMaterializer(e.drv, &failFirstCreate{FileRepository: e.files}, e.analyses, testLogger())
	doc := Document{StudentID: e.student.ID, UploadedBy: e.owner, FileName: "a.pdf", FileType: "pdf", StoragePath: "x/a.pdf"}
	ctx := context.Background()

	res := m.Materialize(ctx, MaterializeInput{
		Document: doc,
		Entries: []llm.Entry{
			{AnalysisContent: entity.AnalysisContent{Title: "1", ActivityContent: "one"}},
			{AnalysisContent: entity.AnalysisContent{Title: "2", ActivityContent: "two"}},
			{AnalysisContent: entity.AnalysisContent{Title: "3", ActivityContent: "three"}},
		},
		RawText: "원문",
	})
	require.Equal(t, 2, res.Count)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 0, res.Failures[0].Index)
	assert.Equal(t, "1", res.Failures[0].Title)

	stored, err := e.analyses.ListByStudent(ctx, e.student.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	raw := map[string]string{}
	for _, a := range stored {
		raw[a.Title] = a.RawText
	}
	assert.Equal(t, map[string]string{"2": "원문", "3": ""}, raw)
}

func TestMaterializeCapsRawText(t *testing.T) {
	assert.Equal(t, "가나", capRunes("가나다", 2))
	assert.Equal(t, "가나다", capRunes("가나다", 5))
}

func TestReanalyzeIsIdempotent(t *testing.T) {
	e := newEnv(t, oneEntry, oneEntry, oneEntry)
	res := e.upload(t)
	require.Equal(t, 1, res.Count)
	id := res.Files[0].ID
	ctx := context.Background()

	require.NoError(t, e.analyses.Edit(ctx, id, entity.AnalysisContent{Title: "수정됨", ActivityContent: "직접 고침"}))

	first, err := e.proc.Reanalyze(ctx, e.owner, id)
	require.NoError(t, err)
	second, err := e.proc.Reanalyze(ctx, e.owner, id)
	require.NoError(t, err)

	assert.Equal(t, first.File.Classification, second.File.Classification)
	assert.Equal(t, first.Analysis.AnalysisContent, second.Analysis.AnalysisContent)
	assert.Equal(t, "천문 동아리 관측", second.Analysis.Title)
	assert.False(t, second.Analysis.IsEdited)
	assert.Equal(t, string(constants.StatusComplete), second.File.AnalysisStatus)
	assert.Nil(t, second.File.AnalysisError)
	assert.NotEmpty(t, second.Analysis.RawText)

	files, err := e.files.ListByStudent(ctx, e.student.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, id, files[0].ID)
	analyses, err := e.analyses.ListByStudent(ctx, e.student.ID)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, id, analyses[0].FileID)
}

func TestReanalyzeOwnershipCheckedFirst(t *testing.T) {
	e := newEnv(t, oneEntry)
	res := e.upload(t)
	calls := e.llm.Calls()

	_, err := e.proc.Reanalyze(context.Background(), uuid.New(), res.Files[0].ID)
	require.ErrorIs(t, err, common.ErrForbidden)
	assert.Equal(t, calls, e.llm.Calls())

	f, err := e.files.GetByID(context.Background(), res.Files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, res.Files[0].UpdatedAt.Unix(), f.UpdatedAt.Unix())
	assert.Equal(t, string(constants.StatusComplete), f.AnalysisStatus)
}

func TestReanalyzeWithoutRawText(t *testing.T) {
	e := newEnv(t, twoEntries)
	res := e.upload(t)

	_, err := e.proc.Reanalyze(context.Background(), e.owner, res.Files[1].ID)
	require.ErrorIs(t, err, common.ErrNoRawText)

	f, err := e.files.GetByID(context.Background(), res.Files[1].ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.StatusComplete), f.AnalysisStatus)
}

func TestReanalyzeModelFailureMarksRecordFailed(t *testing.T) {
	e := newEnv(t, oneEntry)
	res := e.upload(t)
	id := res.Files[0].ID
	e.llm.err = &common.ProviderError{Status: 429, Body: "rate limited"}

	_, err := e.proc.Reanalyze(context.Background(), e.owner, id)
	require.ErrorIs(t, err, common.ErrProviderError)

	f, err := e.files.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, string(constants.StatusFailed), f.AnalysisStatus)
	require.NotNil(t, f.AnalysisError)
	assert.Contains(t, *f.AnalysisError, "429")

	a, err := e.analyses.GetByFileID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "천문 동아리 관측", a.Title)
}

func TestSweeperFailsStuckRecords(t *testing.T) {
	e := newEnv(t, oneEntry)
	res := e.upload(t)
	id := res.Files[0].ID
	ctx := context.Background()
	require.NoError(t, e.files.SetStatus(ctx, id, constants.StatusAnalyzing, nil))

	fresh := NewSweeper(e.files, testLogger(), WithStuckAfter(10*time.Minute))
	n, err := fresh.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	later := NewSweeper(e.files, testLogger(), WithStuckAfter(10*time.Minute),
		withClock(func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }))
	n, err = later.SweepOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	f, err := e.files.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(constants.StatusFailed), f.AnalysisStatus)
	require.NotNil(t, f.AnalysisError)
	assert.Equal(t, "분석 시간이 초과되었습니다.", *f.AnalysisError)
}
