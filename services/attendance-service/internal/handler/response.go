package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/apperror"
	"github.com/vasapolrittideah/school-attendance-api/shared/observability"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   int    `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// decodeJSON reads a JSON object into out. An empty body leaves out untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &apperror.Error{Kind: apperror.KindValidation, Message: "Invalid request body", Err: err}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message, Error: status})
}

// writeAppError maps err onto the error envelope. Store failures are logged and reported.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.From(err)
	status := appErr.Kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		observability.CaptureErr(err)
	} else {
		hlog.FromRequest(r).Debug().Err(err).Str("kind", appErr.Kind.String()).Msg("request rejected")
	}

	writeError(w, status, appErr.Message)
}
