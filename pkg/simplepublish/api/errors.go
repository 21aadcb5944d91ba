package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// ErrorBody is the JSON envelope for every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code           string   `json:"code"`
	Message        string   `json:"message"`
	RequestID      string   `json:"request_id,omitempty"`
	AvailableTypes []string `json:"available_types,omitempty"`
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorBody{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}})
}

// statusFor maps service errors onto HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	var typeErr *simplepublish.TypeNotAvailableError
	switch {
	case errors.Is(err, simplepublish.ErrPublicationNotFound),
		errors.Is(err, simplepublish.ErrAccountNotFound),
		errors.Is(err, simplepublish.ErrAttemptNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, simplepublish.ErrUnknownPlatform),
		errors.Is(err, simplepublish.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &typeErr),
		errors.Is(err, simplepublish.ErrTypeNotAvailable),
		errors.Is(err, simplepublish.ErrUnsupportedContentType):
		return http.StatusUnprocessableEntity, "type_not_available"
	case errors.Is(err, simplepublish.ErrMediaUnavailable):
		return http.StatusUnprocessableEntity, "media_unavailable"
	case errors.Is(err, simplepublish.ErrRetryLimitReached):
		return http.StatusConflict, "retry_limit_reached"
	case errors.Is(err, simplepublish.ErrAttemptNotRetryable),
		errors.Is(err, simplepublish.ErrAttemptNotCancellable):
		return http.StatusConflict, "invalid_attempt_state"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders a service error. 5xx responses hide the cause.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= 500 {
		slog.Error("Request failed", "op", op, "request_id", RequestIDFromContext(r.Context()), "error", err)
		message = "An internal server error occurred"
	} else {
		slog.Warn("Request rejected", "op", op, "status", status, "request_id", RequestIDFromContext(r.Context()), "error", err)
	}

	detail := ErrorDetail{Code: code, Message: message, RequestID: RequestIDFromContext(r.Context())}
	var typeErr *simplepublish.TypeNotAvailableError
	if errors.As(err, &typeErr) {
		for _, t := range typeErr.Available {
			detail.AvailableTypes = append(detail.AvailableTypes, string(t))
		}
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorBody{Error: detail})
}
