package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Response status values
const (
	statusSuccess = "success"
	statusError   = "error"
	statusQR      = "qr"
	statusActive  = "active"
	statusOK      = "ok"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to write response body")
	}
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Status: statusError, Message: message})
}

// writeError maps err onto its HTTP status. Server side failures are logged.
func writeError(w http.ResponseWriter, err error) {
	status := statusCodeFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
}

func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrSessionNotReady), errors.Is(err, errors.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, errors.ErrQrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errors.ErrInvalidDestination),
		errors.Is(err, errors.ErrInvalidTenant),
		errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrSendFailed),
		errors.Is(err, errors.ErrAuthFailure),
		errors.Is(err, errors.ErrDisconnected):
		return http.StatusBadGateway
	case errors.Is(err, errors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
