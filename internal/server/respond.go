package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/apperr"
)

const (
	maxBodyBytes = 1 << 20

	msgInternal           = "An unexpected error occurred."
	msgUnauthorized       = "unauthorized"
	msgInvalidCredentials = "invalid email or password"
	msgTaskNotFound       = "task not found"
)

// respondWithJSON is a helper function to format and send JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"` + msgInternal + `"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string, fields map[string]string) {
	respondWithJSON(w, code, api.ErrorResponse{Error: message, Fields: fields})
}

// writeError maps a coded error to its HTTP response. Unclassified errors are
// logged and answered with a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var coded *apperr.Error
	errors.As(err, &coded)

	switch apperr.CodeOf(err) {
	case apperr.CodeValidation, apperr.CodeWeakPassword, apperr.CodeDuplicateEmail:
		respondWithError(w, http.StatusBadRequest, coded.Message, coded.Fields)
	case apperr.CodeNotFound:
		respondWithError(w, http.StatusNotFound, msgTaskNotFound, nil)
	case apperr.CodeInvalidCredentials:
		respondWithError(w, http.StatusUnauthorized, msgInvalidCredentials, nil)
	case apperr.CodeUnauthenticated, apperr.CodeTokenExpired, apperr.CodeTokenInvalid:
		w.Header().Set("WWW-Authenticate", "Bearer")
		respondWithError(w, http.StatusUnauthorized, msgUnauthorized, nil)
	default:
		s.logger.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
		respondWithError(w, http.StatusInternalServerError, msgInternal, nil)
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, w http.ResponseWriter, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.WithFields(apperr.CodeValidation, "request body is required", map[string]string{"body": "is required"})
		}
		return apperr.WithFields(apperr.CodeValidation, "invalid request payload", map[string]string{"body": "must be valid JSON"})
	}
	return nil
}
