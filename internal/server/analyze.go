package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/pipeline"
)

// AnalyzeServer exposes document upload and reanalysis.
type AnalyzeServer struct {
	processor *pipeline.Processor
	queue     *pipeline.ReanalyzeQueue
	maxBytes  int64
	logger    *slog.Logger
}

func NewAnalyzeServer(processor *pipeline.Processor, queue *pipeline.ReanalyzeQueue, maxBytes int64, logger *slog.Logger) *AnalyzeServer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = constants.MaxUploadBytes
	}
	return &AnalyzeServer{processor: processor, queue: queue, maxBytes: maxBytes, logger: logger}
}

func (s *AnalyzeServer) Register(rg *gin.RouterGroup) {
	rg.POST("/analyze-file", s.AnalyzeFile)
	rg.POST("/files/:id/reanalyze", s.Reanalyze)
	if s.queue != nil {
		rg.POST("/students/:id/reanalyze", s.ReanalyzeStudent)
	}
}

type reanalyzeBody struct {
	Reanalyze bool   `json:"reanalyze"`
	FileID    string `json:"file_id"`
}

// AnalyzeFile accepts either a multipart upload or a JSON reanalysis request.
func (s *AnalyzeServer) AnalyzeFile(c *gin.Context) {
	if c.ContentType() == gin.MIMEJSON {
		var body reanalyzeBody
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, s.logger, badRequest("요청 형식이 올바르지 않습니다."))
			return
		}
		if !body.Reanalyze {
			respondError(c, s.logger, badRequest("파일이 필요합니다."))
			return
		}
		s.reanalyze(c, body.FileID)
		return
	}

	req, err := s.readUpload(c)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	start := time.Now()
	res, err := s.processor.Analyze(c.Request.Context(), req)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	s.logger.Info("http.analyze.ok",
		"req_id", requestID(c),
		"student_id", req.StudentID,
		"records", res.Count,
		"failures", len(res.Failures),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	respondOK(c, gin.H{
		"count":    res.Count,
		"files":    res.Files,
		"analyses": res.Analyses,
		"failures": res.Failures,
	})
}

func (s *AnalyzeServer) Reanalyze(c *gin.Context) {
	s.reanalyze(c, c.Param("id"))
}

func (s *AnalyzeServer) reanalyze(c *gin.Context, rawID string) {
	fileID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		respondError(c, s.logger, badRequest("file_id가 올바르지 않습니다."))
		return
	}
	out, err := s.processor.Reanalyze(c.Request.Context(), userID(c), fileID)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"file": out.File, "analysis": out.Analysis})
}

// ReanalyzeStudent queues every idle record of the student and returns at once.
func (s *AnalyzeServer) ReanalyzeStudent(c *gin.Context) {
	studentID, ok := parsePathID(c, s.logger, "id")
	if !ok {
		return
	}
	consultantID := userID(c)
	ids, err := s.processor.ReanalyzableFiles(c.Request.Context(), consultantID, studentID)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	queued := 0
	for _, id := range ids {
		job := pipeline.ReanalyzeJob{ConsultantID: consultantID, FileID: id, RequestID: requestID(c)}
		if err := s.queue.Enqueue(c.Request.Context(), job); err != nil {
			s.logger.Warn("http.reanalyze_all.enqueue_failed", "req_id", requestID(c), "file_id", id, "error", err)
			break
		}
		queued++
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "queued": queued})
}

func (s *AnalyzeServer) readUpload(c *gin.Context) (pipeline.AnalyzeRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pipeline.AnalyzeRequest{}, common.NewAppError("FILE_TOO_LARGE", "파일 크기는 10MB 이하여야 합니다.", common.ErrFileTooLarge)
		}
		return pipeline.AnalyzeRequest{}, badRequest("파일이 필요합니다.")
	}
	if fh.Size > s.maxBytes {
		return pipeline.AnalyzeRequest{}, common.NewAppError("FILE_TOO_LARGE", "파일 크기는 10MB 이하여야 합니다.", common.ErrFileTooLarge)
	}

	v := common.NewValidator()
	v.Field("student_id", c.PostForm("student_id"), common.Required, common.UUID)
	v.Field("semester", c.PostForm("semester"), common.Semester)
	hours, hoursErr := parseHours(c.PostForm("bongsa_hours"))
	if hoursErr != nil {
		return pipeline.AnalyzeRequest{}, badRequest("bongsa_hours는 숫자여야 합니다.")
	}
	v.Field("bongsa_hours", hours, common.NonNegative)
	if err := v.Error(); err != nil {
		return pipeline.AnalyzeRequest{}, err
	}
	studentID, _ := uuid.Parse(c.PostForm("student_id"))

	f, err := fh.Open()
	if err != nil {
		return pipeline.AnalyzeRequest{}, badRequest("파일을 읽을 수 없습니다.")
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, s.maxBytes+1))
	if err != nil {
		return pipeline.AnalyzeRequest{}, badRequest("파일을 읽을 수 없습니다.")
	}

	return pipeline.AnalyzeRequest{
		ConsultantID: userID(c),
		StudentID:    studentID,
		FileName:     fh.Filename,
		MimeType:     fh.Header.Get("Content-Type"),
		Data:         data,
		Hints: entity.Classification{
			Semester:          c.PostForm("semester"),
			CategoryMain:      c.PostForm("category_main"),
			ChangcheType:      optForm(c, "changche_type"),
			ChangcheSub:       c.PostForm("changche_sub"),
			GyogwaType:        optForm(c, "gyogwa_type"),
			GyogwaSub:         c.PostForm("gyogwa_sub"),
			GyogwaSubjectName: c.PostForm("gyogwa_subject_name"),
			BongsaHours:       hours,
		},
	}, nil
}

func optForm(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.PostForm(key))
	if v == "" {
		return nil
	}
	return &v
}

func parseHours(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	h, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &h, nil
}
