package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/export"
)

const xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExportServer struct {
	svc    *export.Service
	logger *slog.Logger
}

func NewExportServer(svc *export.Service, logger *slog.Logger) *ExportServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportServer{svc: svc, logger: logger}
}

func (s *ExportServer) Register(rg *gin.RouterGroup) {
	rg.GET("/students/:id/export.xlsx", s.ExportXLSX)
}

func (s *ExportServer) ExportXLSX(c *gin.Context) {
	studentID, ok := parsePathID(c, s.logger, "id")
	if !ok {
		return
	}
	name, data, err := s.svc.ExportStudentXLSX(c.Request.Context(), userID(c), studentID)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "student_id", studentID, "err", err)
		respondError(c, s.logger, err)
		return
	}
	c.Header("Content-Disposition", contentDisposition(name))
	c.Data(http.StatusOK, xlsxMime, data)
}
