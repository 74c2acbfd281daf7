package router

import (
	"errors"
	"net/http"

	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Response is the envelope every API handler writes.
type Response struct {
	Status  int        `json:"status"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

func RespondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Status: http.StatusOK, Message: message, Data: data})
}

func RespondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, Response{Status: http.StatusAccepted, Message: message, Data: data})
}

// RespondWithError writes err as an error envelope. A RequestError keeps its
// own status code; anything else becomes a 500.
func RespondWithError(c *gin.Context, err error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = NewRequestError(http.StatusInternalServerError, "internal server error", err)
	}
	info := reqErr.GetErrorInfo()
	log := logger.FromContext(c.Request.Context())
	fields := []any{"status", reqErr.StatusCode, "code", info.Code, "path", c.Request.URL.Path, "error", err}
	if reqErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
	} else {
		log.Warn("Request failed", fields...)
	}
	c.AbortWithStatusJSON(reqErr.StatusCode, Response{
		Status:  reqErr.StatusCode,
		Message: info.Message,
		Error:   info,
	})
}

// GetURLParam returns a required path parameter, writing a 400 when it is blank.
func GetURLParam(c *gin.Context, name string) string {
	value := c.Param(name)
	if value == "" {
		RespondWithError(c, NewRequestError(http.StatusBadRequest, name+" is required", nil))
	}
	return value
}
