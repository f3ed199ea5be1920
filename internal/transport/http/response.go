package http

import (
	"errors"
	"net/http"

	"contest-service/internal/app"
	"contest-service/internal/auth"
	"contest-service/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

func success(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Response{Code: 0, Data: data, Message: message})
}

// fail writes err with the status its domain kind maps to.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.S().Errorw("API error", "path", c.FullPath(), "error", err)
		msg = "internal server error"
	} else {
		zap.S().Debugw("API error", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, Response{Code: -1, Data: nil, Message: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrEventsDisabled):
		return http.StatusServiceUnavailable
	}
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{Code: -1, Data: nil, Message: msg})
}
