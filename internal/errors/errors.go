// Package errors provides the structured error type used at component
// boundaries and its translation to the HTTP edge (§7 error handling design).
package errors

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/channelcast/channelcast/internal/logger"
)

// CoreError is a structured error carrying an HTTP mapping and redactable context.
type CoreError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}

var pathPattern = regexp.MustCompile(`(?:[A-Za-z]:\\|/)[^\s"']+`)

// redactPaths replaces filesystem paths in an outward-facing string with a placeholder.
func redactPaths(s string) string {
	return pathPattern.ReplaceAllString(s, "<path>")
}

// ToGinResponse sends the error as a standardized, path-redacted JSON response.
func (e *CoreError) ToGinResponse(c *gin.Context) {
	statusCode := e.HTTPStatus
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	response := gin.H{
		"error": redactPaths(e.Message),
		"code":  e.Code,
	}

	if len(e.Context) > 0 {
		redacted := make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			if s, ok := v.(string); ok {
				v = redactPaths(s)
			}
			redacted[k] = v
		}
		response["details"] = redacted
	}

	logger.Error("http error response",
		"status", statusCode,
		"code", e.Code,
		"message", e.Message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method)

	c.JSON(statusCode, response)
}

// NewValidationError reports rejected input. Per §7 this never reaches the
// core; it exists for the HTTP edge (out of scope) to construct.
func NewValidationError(message, field string) *CoreError {
	return &CoreError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"field": field},
	}
}

// NewNotFoundError reports an unknown channel/media/bucket.
func NewNotFoundError(resource, id string) *CoreError {
	return &CoreError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"resource": resource, "id": id},
	}
}

// NewConflictError reports a duplicate slug or a start-already-streaming request.
func NewConflictError(message string, context map[string]interface{}) *CoreError {
	return &CoreError{
		Code:       "CONFLICT",
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Context:    context,
	}
}

// NewTranscoderSpawnError reports a FailSpawn/FailInputNotFound/FailConcatInvalid condition.
func NewTranscoderSpawnError(channelID string, cause error) *CoreError {
	return &CoreError{
		Code:       "TRANSCODER_SPAWN",
		Message:    "failed to start transcoder",
		HTTPStatus: http.StatusInternalServerError,
		Context:    map[string]interface{}{"channel_id": channelID},
		Cause:      cause,
	}
}

// NewTranscoderAbnormalExitError reports AbnormalExit with the trailing stderr tail.
func NewTranscoderAbnormalExitError(channelID string, stderrTail []string, cause error) *CoreError {
	return &CoreError{
		Code:       "TRANSCODER_ABNORMAL_EXIT",
		Message:    "transcoder exited abnormally",
		HTTPStatus: http.StatusInternalServerError,
		Context: map[string]interface{}{
			"channel_id": channelID,
			"stderr":     stderrTail,
		},
		Cause: cause,
	}
}

// NewRepositoryUnavailableError reports a degraded persistence layer (§7: the
// core keeps serving from memory where possible).
func NewRepositoryUnavailableError(operation string, cause error) *CoreError {
	return &CoreError{
		Code:       "REPOSITORY_UNAVAILABLE",
		Message:    "repository operation failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Context:    map[string]interface{}{"operation": operation},
		Cause:      cause,
	}
}

// NewFatalError reports a configuration error or unhandled panic that must
// trigger orderly shutdown via the orchestrator.
func NewFatalError(message string, cause error) *CoreError {
	return &CoreError{
		Code:       "FATAL",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// HandleValidationError writes a validation-error response for the given field.
func HandleValidationError(c *gin.Context, message, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

// HandleNotFound writes a not-found response for the given resource/id.
func HandleNotFound(c *gin.Context, resource, id string) {
	NewNotFoundError(resource, id).ToGinResponse(c)
}

// HandleInternalError writes a generic 500 response.
func HandleInternalError(c *gin.Context, message string, err error) {
	(&CoreError{Code: "INTERNAL_ERROR", Message: message, HTTPStatus: http.StatusInternalServerError, Cause: err}).ToGinResponse(c)
}
