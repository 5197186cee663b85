package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/middleware"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Error   string      `json:"error"`
	Code    apperr.Code `json:"code"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError maps err to its status and writes the error envelope.
// Causes are logged, never returned to the client.
func respondWithError(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.MessageOf(err)

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"code":       apperr.CodeOf(err),
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	respondWithJSON(w, status, ErrorResponse{
		Success: false,
		Message: msg,
		Error:   msg,
		Code:    apperr.CodeOf(err),
	})
}

// notFound answers requests that match no route.
func notFound(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, r, logger, apperr.Newf(apperr.CodeNotFound, "Route %s %s not found", r.Method, r.URL.Path))
	}
}

// decodeBody reads a JSON body into v. An empty body leaves v zero-valued so
// the caller's required-field checks produce the error.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("Invalid request body")
}
