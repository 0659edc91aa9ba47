package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"city-raid/internal/service"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type      string               `json:"type,omitempty"`
	Title     string               `json:"title"`
	Status    int                  `json:"status"`
	Detail    string               `json:"detail,omitempty"`
	Code      service.Code         `json:"code"`
	Retryable bool                 `json:"retryable,omitempty"`
	Meta      map[string]any       `json:"meta,omitempty"`
	Errors    []service.FieldError `json:"errors,omitempty"`
}

// WriteProblem writes err as application/problem+json. Uncoded errors are
// reported as STORAGE_FAILURE without leaking their text.
func WriteProblem(w http.ResponseWriter, err error) {
	var e *service.Error
	if !errors.As(err, &e) {
		log.Error().Err(err).Msg("Uncoded error reached the handler")
		e = service.ErrStorageFailure
	}
	status := e.Code.HTTPStatus()
	writeJSON(w, status, "application/problem+json", Problem{
		Type:      "urn:city-raid:error:" + strings.ToLower(string(e.Code)),
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    e.Message,
		Code:      e.Code,
		Retryable: e.Code.Retryable(),
		Meta:      e.Meta,
		Errors:    e.Fields,
	})
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, "application/json", v)
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
