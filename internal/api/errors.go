package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/pipeline"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id,omitempty"` // run id for identification failures
}

// statusForKind maps a pipeline failure to its HTTP status.
func statusForKind(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.KindEncoding:
		return http.StatusUnprocessableEntity
	case pipeline.KindRegistryFetch, pipeline.KindIdentification:
		return http.StatusBadGateway
	case pipeline.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs err and writes an ErrorResponse.
func (s *Server) handleError(c echo.Context, err error, errorCode, message string, code int, correlationID string) error {
	fields := []logger.Field{
		logger.String("error_code", errorCode),
		logger.Int("status", code),
		logger.String("path", c.Path()),
		logger.String("method", c.Request().Method),
		logger.String("ip", c.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	log := s.log.WithContext(c.Request().Context())
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Warn("API error", fields...)
	}

	return c.JSON(code, ErrorResponse{
		Error:         errorCode,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	})
}
