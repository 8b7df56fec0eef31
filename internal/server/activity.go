package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/activity"
)

// ActivityServer exposes stored activity records and their documents.
type ActivityServer struct {
	svc    *activity.Service
	logger *slog.Logger
}

func NewActivityServer(svc *activity.Service, logger *slog.Logger) *ActivityServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityServer{svc: svc, logger: logger}
}

func (s *ActivityServer) Register(rg *gin.RouterGroup) {
	rg.GET("/students/:id/files", s.List)
	rg.DELETE("/students/:id/files", s.DeleteDocument)
	rg.PATCH("/files/:id/classification", s.Reclassify)
	rg.PATCH("/files/:id/analysis", s.EditAnalysis)
	rg.DELETE("/files/:id", s.Delete)
	rg.GET("/files/:id/download", s.Download)
}

func (s *ActivityServer) List(c *gin.Context) {
	studentID, ok := parsePathID(c, s.logger, "id")
	if !ok {
		return
	}
	records, err := s.svc.List(c.Request.Context(), userID(c), studentID)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"records": records})
}

type deleteDocumentBody struct {
	StoragePath string `json:"storage_path"`
}

// DeleteDocument removes every record extracted from one uploaded document.
func (s *ActivityServer) DeleteDocument(c *gin.Context) {
	studentID, ok := parsePathID(c, s.logger, "id")
	if !ok {
		return
	}
	var body deleteDocumentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, s.logger, badRequest("요청 형식이 올바르지 않습니다."))
		return
	}
	n, err := s.svc.DeleteDocument(c.Request.Context(), userID(c), studentID, body.StoragePath)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"deleted": n})
}

func (s *ActivityServer) Reclassify(c *gin.Context) {
	fileID, ok := parsePathID(c, s.logger, "id")
	if !ok {
		return
	}
	var body entity.Classification
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, s.logger, badRequest("요청 형식이 올바르지 않습니다."))
		return
	}
	f, err := s.svc.Reclassify(c.Request.Context(), userID(c), fileID, body)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"file": f})
}

func (s *ActivityServer) EditAnalysis(c *gin.Context) {
	fileID, ok := parsePathID(c, s.logger, "id")
	if !ok {
		return
	}
	var body entity.AnalysisContent
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, s.logger, badRequest("요청 형식이 올바르지 않습니다."))
		return
	}
	a, err := s.svc.EditAnalysis(c.Request.Context(), userID(c), fileID, body)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"analysis": a})
}

func (s *ActivityServer) Delete(c *gin.Context) {
	fileID, ok := parsePathID(c, s.logger, "id")
	if !ok {
		return
	}
	if err := s.svc.Delete(c.Request.Context(), userID(c), fileID); err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, nil)
}

func (s *ActivityServer) Download(c *gin.Context) {
	fileID, ok := parsePathID(c, s.logger, "id")
	if !ok {
		return
	}
	f, data, err := s.svc.Download(c.Request.Context(), userID(c), fileID)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	contentType := f.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", contentDisposition(f.FileName))
	c.Data(http.StatusOK, contentType, data)
}

// contentDisposition carries non-ASCII names via RFC 5987 encoding.
func contentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename="download"; filename*=UTF-8''%s`, url.PathEscape(name))
}
