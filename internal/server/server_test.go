package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/pipeline"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/activity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/export"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/student"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/storage"
)

const (
	testSecret = "test-secret"
	twoEntries = `{"e":[` +
		`{"s":"2-1","c":"창","ct":"봉","bh":12,"t":"지역아동센터 학습 멘토링","ac":"초등학생 수학 학습을 도왔다."},` +
		`{"s":"2-1","c":"교","gt":"수","gs":"실험","gn":"화학","t":"산화환원 적정 실험","ac":"적정 곡선을 분석했다."}` +
		`]}`
)

type fixedCompleter struct{ content string }

func (f fixedCompleter) Complete(context.Context, llm.CompletionRequest) (llm.Completion, error) {
	return llm.Completion{Content: f.content, FinishReason: "stop"}, nil
}

type harness struct {
	router *gin.Engine
	owner  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	drv, err := repository.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, repository.Migrate(context.Background(), drv, logger))

	blobs, err := storage.NewFSStore(t.TempDir(), logger)
	require.NoError(t, err)

	students := repository.NewStudentRepository(drv, logger)
	files := repository.NewFileRepository(drv, logger)
	analyses := repository.NewAnalysisRepository(drv, logger)
	career := repository.NewCareerRepository(drv, logger)

	proc := pipeline.NewProcessor(logger, time.Minute, drv, students, files, analyses, blobs,
		document.NewDecoder(document.Config{}, logger),
		llm.NewExtractor(fixedCompleter{content: twoEntries}, 0, 16000, logger))

	queue := pipeline.NewReanalyzeQueue(proc, logger, pipeline.WithWorkers(1))
	t.Cleanup(func() { queue.Shutdown(context.Background()) })

	router := NewRouter(RouterConfig{JWTSecret: testSecret, CORSOrigins: []string{"http://localhost:5173"}}, Handlers{
		Health:   NewHealthServer(drv, logger),
		Analyze:  NewAnalyzeServer(proc, queue, 0, logger),
		Students: NewStudentServer(student.NewService(students, files, career, blobs, logger), logger),
		Activity: NewActivityServer(activity.NewService(students, files, analyses, blobs, logger), logger),
		Export:   NewExportServer(export.NewService(students, files, analyses, career, logger), logger),
	}, logger)
	return &harness{router: router, owner: uuid.New()}
}

func token(t *testing.T, secret string, sub uuid.UUID) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (h *harness) do(t *testing.T, as uuid.UUID, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+token(t, testSecret, as))
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) doJSON(t *testing.T, as uuid.UUID, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return h.do(t, as, method, path, body, "application/json")
}

func (h *harness) createStudent(t *testing.T) entity.Student {
	t.Helper()
	w := h.doJSON(t, h.owner, http.MethodPost, "/api/students", map[string]any{
		"name": "김하늘", "school_level": "high", "grade": "2",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Student entity.Student `json:"student"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Student
}

func docx(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func (h *harness) upload(t *testing.T, as uuid.UUID, studentID string, fields map[string]string, withFile bool) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("student_id", studentID))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withFile {
		fw, err := mw.CreateFormFile("file", "report.docx")
		require.NoError(t, err)
		_, err = fw.Write(docx(t, "2학년 봉사활동 및 화학 실험 보고서"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return h.do(t, as, http.MethodPost, "/api/analyze-file", &body, mw.FormDataContentType())
}

type analyzeResponse struct {
	Success  bool                   `json:"success"`
	Count    int                    `json:"count"`
	Files    []*entity.UploadedFile `json:"files"`
	Analyses []*entity.FileAnalysis `json:"analyses"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealthzIsPublic(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, uuid.Nil, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestAuthRejectsMissingAndForeignTokens(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, uuid.Nil, http.MethodGet, "/api/students", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "other-secret", h.owner))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStudentLifecycle(t *testing.T) {
	h := newHarness(t)
	st := h.createStudent(t)
	assert.Equal(t, "h02001", st.StudentLoginID)
	assert.Equal(t, "h02002", h.createStudent(t).StudentLoginID)

	w := h.doJSON(t, h.owner, http.MethodPatch, "/api/students/"+st.ID.String(), map[string]any{"student_phone": "12345"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.doJSON(t, uuid.New(), http.MethodGet, "/api/students/"+st.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, w).Code)

	w = h.doJSON(t, h.owner, http.MethodGet, "/api/students/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.doJSON(t, h.owner, http.MethodPut, "/api/students/"+st.ID.String()+"/career-goals", map[string]any{
		"career_field_1st": "공학", "admission_hakjong_ratio": 60, "admission_gyogwa_ratio": 40,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.doJSON(t, h.owner, http.MethodDelete, "/api/students/"+st.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.doJSON(t, h.owner, http.MethodGet, "/api/students/"+st.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeUploadAndRecords(t *testing.T) {
	h := newHarness(t)
	st := h.createStudent(t)

	w := h.upload(t, h.owner, st.ID.String(), map[string]string{"semester": "2-1"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res analyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, 2, res.Count)
	require.Len(t, res.Files, 2)
	assert.Equal(t, res.Files[0].StoragePath, res.Files[1].StoragePath)

	w = h.doJSON(t, h.owner, http.MethodGet, "/api/students/"+st.ID.String()+"/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Records []activity.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Records, 2)

	w = h.do(t, h.owner, http.MethodGet, "/api/files/"+res.Files[0].ID.String()+"/download", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, docx(t, "2학년 봉사활동 및 화학 실험 보고서"), w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "report.docx")

	w = h.do(t, h.owner, http.MethodGet, "/api/students/"+st.ID.String()+"/export.xlsx", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxMime, w.Header().Get("Content-Type"))

	w = h.doJSON(t, h.owner, http.MethodPost, "/api/analyze-file", map[string]any{
		"reanalyze": true, "file_id": res.Files[0].ID.String(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.doJSON(t, h.owner, http.MethodDelete, "/api/students/"+st.ID.String()+"/files",
		map[string]string{"storage_path": res.Files[0].StoragePath})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"deleted":2}`, w.Body.String())
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	st := h.createStudent(t)

	w := h.upload(t, h.owner, st.ID.String(), nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.upload(t, h.owner, "nope", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.upload(t, h.owner, st.ID.String(), map[string]string{"bongsa_hours": "-1"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.upload(t, uuid.New(), st.ID.String(), nil, true)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.doJSON(t, h.owner, http.MethodPost, "/api/analyze-file", map[string]any{"file_id": uuid.NewString()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.doJSON(t, h.owner, http.MethodPost, "/api/files/"+uuid.NewString()+"/reanalyze", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
}

func TestReanalyzeStudentQueuesRecords(t *testing.T) {
	h := newHarness(t)
	st := h.createStudent(t)
	w := h.upload(t, h.owner, st.ID.String(), nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.doJSON(t, h.owner, http.MethodPost, "/api/students/"+st.ID.String()+"/reanalyze", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"queued":2}`, w.Body.String())

	w = h.doJSON(t, uuid.New(), http.MethodPost, "/api/students/"+st.ID.String()+"/reanalyze", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
