package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// Client-facing messages are fixed per type; causes only go to the log.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case errors.Is(err, services.ErrDealNotFound):
		writeErr = utils.WriteNotFound(w, "Deal not found.")

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, "Resource not found")

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, validationMessage(err), publicDetails(details))

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, "Authentication required")

	case services.IsRateLimitError(err):
		retryAfter, _ := details[services.DetailRetryAfter].(time.Duration)
		writeErr = utils.WriteTooManyRequests(w, "Too many requests", retryAfter)

	case services.IsExternalError(err):
		logger.Warn("remote API error", zap.Error(err))
		writeErr = utils.WriteBadGateway(w, "Remote service unavailable")

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var details map[string]interface{}
	message := err.Error()
	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		details = validationErr.Details()
		message = "Validation failed"
	}

	if err := utils.WriteBadRequest(w, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidDealRef):
		return "Invalid deal ID."
	case errors.Is(err, services.ErrInvalidLocale):
		return "Unsupported locale."
	default:
		return "Invalid request."
	}
}

// publicDetails drops anything that is not a plain string, such as wrapped causes.
func publicDetails(details map[string]interface{}) map[string]interface{} {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
