package handlers

import (
	"net/http"

	"shop-svc/middleware"
	"shop-svc/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[service.Kind]int{
	service.KindValidation:  http.StatusBadRequest,
	service.KindNotFound:    http.StatusNotFound,
	service.KindForbidden:   http.StatusForbidden,
	service.KindConflict:    http.StatusConflict,
	service.KindPersistence: http.StatusInternalServerError,
}

// respondError writes the JSON error body for err. Storage details never reach the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		logger.Error("Unexpected error",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	status, ok := statusByKind[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": svcErr.Message, "code": svcErr.Code}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("code", string(svcErr.Code)),
			zap.Error(err),
		)
		body["error"] = "Internal server error"
	}
	if len(svcErr.Fields) > 0 {
		body["fields"] = svcErr.Fields
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": code})
}
