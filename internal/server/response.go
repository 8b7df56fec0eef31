package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
)

// ErrorEnvelope is the body of every failed API call.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := common.HTTPStatus(err)
	msg := common.UserMessage(err)
	var ae *common.AppError
	if !errors.As(err, &ae) && status == http.StatusInternalServerError {
		msg = "서버 오류가 발생했습니다."
	}
	if status >= 500 {
		logger.Error("http.error", "req_id", requestID(c), "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Success: false, Error: msg, Code: common.ErrorCode(err)})
}

func badRequest(msg string) error {
	return common.NewAppError("INVALID_INPUT", msg, common.ErrInvalidInput)
}

func respondOK(c *gin.Context, payload gin.H) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["success"] = true
	c.JSON(http.StatusOK, payload)
}
