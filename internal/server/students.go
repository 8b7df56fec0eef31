package server

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/student"
)

// StudentServer exposes the student roster and career planning endpoints.
type StudentServer struct {
	svc    *student.Service
	logger *slog.Logger
}

func NewStudentServer(svc *student.Service, logger *slog.Logger) *StudentServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudentServer{svc: svc, logger: logger}
}

func (s *StudentServer) Register(rg *gin.RouterGroup) {
	rg.GET("/students", s.List)
	rg.POST("/students", s.Create)
	rg.GET("/students/:id", s.Get)
	rg.PATCH("/students/:id", s.Update)
	rg.DELETE("/students/:id", s.Delete)

	rg.GET("/students/:id/career-goals", s.CareerGoals)
	rg.PUT("/students/:id/career-goals", s.SaveCareerGoals)
	rg.GET("/students/:id/career-history", s.CareerHistory)
	rg.POST("/students/:id/career-history", s.AddCareerChange)
	rg.DELETE("/students/:id/career-history/:changeId", s.DeleteCareerChange)
}

func (s *StudentServer) List(c *gin.Context) {
	list, err := s.svc.List(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"students": list})
}

func (s *StudentServer) Create(c *gin.Context) {
	var req student.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, s.logger, badRequest("요청 형식이 올바르지 않습니다."))
		return
	}
	st, err := s.svc.Create(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"student": st})
}

func (s *StudentServer) Get(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	st, err := s.svc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"student": st})
}

func (s *StudentServer) Update(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req student.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, s.logger, badRequest("요청 형식이 올바르지 않습니다."))
		return
	}
	st, err := s.svc.Update(c.Request.Context(), userID(c), id, req)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"student": st})
}

func (s *StudentServer) Delete(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, nil)
}

func (s *StudentServer) CareerGoals(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	g, err := s.svc.CareerGoals(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"career_goals": g})
}

func (s *StudentServer) SaveCareerGoals(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var g entity.CareerGoals
	if err := c.ShouldBindJSON(&g); err != nil {
		respondError(c, s.logger, badRequest("요청 형식이 올바르지 않습니다."))
		return
	}
	saved, err := s.svc.SaveCareerGoals(c.Request.Context(), userID(c), id, &g)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"career_goals": saved})
}

func (s *StudentServer) CareerHistory(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	list, err := s.svc.CareerHistory(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"career_history": list})
}

func (s *StudentServer) AddCareerChange(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var ch entity.CareerChange
	if err := c.ShouldBindJSON(&ch); err != nil {
		respondError(c, s.logger, badRequest("요청 형식이 올바르지 않습니다."))
		return
	}
	saved, err := s.svc.AddCareerChange(c.Request.Context(), userID(c), id, &ch)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, gin.H{"career_change": saved})
}

func (s *StudentServer) DeleteCareerChange(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	changeID, ok := s.pathID(c, "changeId")
	if !ok {
		return
	}
	if err := s.svc.DeleteCareerChange(c.Request.Context(), userID(c), id, changeID); err != nil {
		respondError(c, s.logger, err)
		return
	}
	respondOK(c, nil)
}

func (s *StudentServer) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	return parsePathID(c, s.logger, name)
}

func parsePathID(c *gin.Context, logger *slog.Logger, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		respondError(c, logger, badRequest(name+" must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
