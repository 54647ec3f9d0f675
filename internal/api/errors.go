package api

import (
	"errors"
	"log/slog"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	msgAuthFailed      = "Authentication failed. Please check your credentials."
	msgInvalidFormat   = "invalid response format"
	msgNoAccessToken   = "no access token received"
	msgValidation      = "Validation failed"
	msgAgentNotFound   = "Agent not found"
	msgUpstreamInvalid = "Invalid response from upstream API"
	msgInternal        = "An unexpected error occurred"
)

// Failure is an error that maps directly to an HTTP response.
// Fields carries field-level validation messages.
type Failure struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (f *Failure) Error() string { return f.Message }

func validationFailure(fields map[string]string) *Failure {
	return &Failure{Status: http.StatusBadRequest, Message: msgValidation, Fields: fields}
}

func notFound(message string) *Failure {
	return &Failure{Status: http.StatusNotFound, Message: message}
}

// writeError converts err into a JSON error response. Anything that is not a
// *Failure is treated as unexpected: logged in full, reported generically.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var f *Failure
	if errors.As(err, &f) {
		if f.Status >= http.StatusInternalServerError {
			slog.Error("Request failed", "op", op, "status", f.Status, "error", err,
				"request_id", chiMiddleware.GetReqID(r.Context()))
		}
		if len(f.Fields) > 0 {
			JSON(w, f.Status, map[string]interface{}{"message": f.Message, "errors": f.Fields})
			return
		}
		Error(w, f.Status, f.Message)
		return
	}

	slog.Error("Unexpected error", "op", op, "error", err,
		"request_id", chiMiddleware.GetReqID(r.Context()))
	Error(w, http.StatusInternalServerError, msgInternal)
}
