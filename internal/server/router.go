// Package server is the HTTP surface of the tracker: a gin router with JWT
// authentication in front of the analysis pipeline and record services.
package server

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	JWTSecret      string
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Handlers groups the endpoint servers mounted under /api.
type Handlers struct {
	Health   *HealthServer
	Analyze  *AnalyzeServer
	Students *StudentServer
	Activity *ActivityServer
	Export   *ExportServer
}

func NewRouter(cfg RouterConfig, h Handlers, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(logger))
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", headerRequestID},
			ExposeHeaders:    []string{"Content-Disposition", headerRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if h.Health != nil {
		r.GET("/healthz", h.Health.Healthz)
	}

	api := r.Group("/api")
	api.Use(Auth([]byte(cfg.JWTSecret), logger))
	if h.Analyze != nil {
		h.Analyze.Register(api)
	}
	if h.Students != nil {
		h.Students.Register(api)
	}
	if h.Activity != nil {
		h.Activity.Register(api)
	}
	if h.Export != nil {
		h.Export.Register(api)
	}
	return r
}
