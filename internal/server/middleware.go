package server

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "req_id"
	ctxUserID       = "user_id"
)

// RequestID tags every request with an id carried in the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(headerRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxRequestID, rid)
		c.Header(headerRequestID, rid)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}

// AccessLog writes one slog line per request.
func AccessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http.request",
			"req_id", requestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Auth requires an HS256 Bearer token whose subject is the consultant id.
func Auth(secret []byte, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) <= 7 || !strings.EqualFold(header[:7], "Bearer ") {
			respondError(c, logger, unauthorized())
			return
		}
		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(header[7:], &claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			logger.Warn("http.auth.invalid_token", "req_id", requestID(c), "error", err)
			respondError(c, logger, unauthorized())
			return
		}
		uid, err := uuid.Parse(claims.Subject)
		if err != nil || uid == uuid.Nil {
			respondError(c, logger, unauthorized())
			return
		}
		c.Set(ctxUserID, uid)
		c.Request = c.Request.WithContext(common.WithUserID(c.Request.Context(), uid))
		c.Next()
	}
}

func unauthorized() error {
	return common.NewAppError("UNAUTHORIZED", "로그인이 필요합니다.", common.ErrUnauthorized)
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

func userID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ctxUserID)
	id, _ := v.(uuid.UUID)
	return id
}
