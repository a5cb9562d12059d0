package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestStatusCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not ready", errors.ErrSessionNotReady, http.StatusConflict},
		{"already active", errors.Wrapf(errors.ErrAlreadyActive, "t1"), http.StatusConflict},
		{"qr timeout", errors.ErrQrTimeout, http.StatusGatewayTimeout},
		{"invalid destination", errors.ErrInvalidDestination, http.StatusBadRequest},
		{"invalid tenant", errors.ErrInvalidTenant, http.StatusBadRequest},
		{"invalid request", errors.ErrInvalidRequest, http.StatusBadRequest},
		{"unauthorized", errors.ErrUnauthorized, http.StatusUnauthorized},
		{"send failed", &errors.SendError{Destination: "15551230000", Cause: context.DeadlineExceeded}, http.StatusBadGateway},
		{"auth failure", errors.ErrAuthFailure, http.StatusBadGateway},
		{"disconnected", &errors.DisconnectedError{Reason: "logged out"}, http.StatusBadGateway},
		{"storage", errors.Wrapf(errors.ErrStorageUnavailable, "[Purge] t1"), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, statusCodeFor(tt.err))
		})
	}
}
