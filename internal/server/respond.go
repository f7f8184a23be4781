package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/domain"
)

type metadata struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type envelope struct {
	Data     interface{} `json:"data"`
	Metadata metadata    `json:"metadata"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := envelope{
		Data: data,
		Metadata: metadata{
			RequestID: middleware.GetReqID(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, domain.ErrCircuitTooDeep),
		errors.Is(err, domain.ErrInsufficientData):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUntrainedModel):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Request rejected")
	}
	writeJSON(w, r, log, status, errorBody{Error: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
