package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/wa-session-gateway/dispatch"
	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/sessions"
	"github.com/jrsteele09/wa-session-gateway/tenants"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const (
	maxRequestBodyBytes = 1 << 20
	qrImageSize         = 256
)

// QRResponse is returned while a tenant is pairing
type QRResponse struct {
	Status      string    `json:"status"`
	QR          string    `json:"qr,omitempty"`
	QRImage     string    `json:"qrImage,omitempty"`
	Fresh       bool      `json:"fresh,omitempty"`
	GeneratedAt time.Time `json:"generatedAt,omitzero"`
}

type StatusResponse struct {
	Status string         `json:"status"`
	Active bool           `json:"active"`
	State  sessions.State `json:"state"`
}

type SendMessageRequest struct {
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

type SendMessageResponse struct {
	Status    string    `json:"status"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

type SendMessagesResponse struct {
	Status  string                      `json:"status"`
	Results map[string]dispatch.Outcome `json:"results"`
}

type SessionSummary struct {
	TenantID  string         `json:"tenantId"`
	State     sessions.State `json:"state"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"createdAt"`
	ReadyAt   time.Time      `json:"readyAt,omitzero"`
}

type SessionsResponse struct {
	Status   string           `json:"status"`
	Sessions []SessionSummary `json:"sessions"`
}

type statusOnlyResponse struct {
	Status string `json:"status"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusOnlyResponse{Status: statusOK})
	}
}

// PreflightHandler answers CORS preflights; the CORS middleware has already set the headers
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// QRHandler returns the tenant's pairing code, starting a session if needed
func (s *Server) QRHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue(pathTenantID)
		res, err := s.sessions.QR(r.Context(), tenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		if res.Active {
			writeJSON(w, http.StatusOK, QRResponse{Status: statusActive})
			return
		}

		image, err := qrDataURL(res.Code)
		if err != nil {
			writeError(w, errors.Wrapf(err, "[QRHandler] render qr for %s", tenantID))
			return
		}
		writeJSON(w, http.StatusOK, QRResponse{
			Status:      statusQR,
			QR:          res.Code,
			QRImage:     image,
			Fresh:       res.Fresh,
			GeneratedAt: res.GeneratedAt,
		})
	}
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue(pathTenantID)
		if err := tenants.ValidateID(tenantID); err != nil {
			writeError(w, err)
			return
		}
		snap, _ := s.sessions.Status(tenantID)
		writeJSON(w, http.StatusOK, StatusResponse{
			Status: statusSuccess,
			Active: snap.Active,
			State:  snap.State,
		})
	}
}

// StartHandler begins a fresh pairing cycle. A ready session is left alone and reported as a conflict.
func (s *Server) StartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.sessions.Start(r.Context(), r.PathValue(pathTenantID))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{
			Status: statusSuccess,
			Active: snap.Active,
			State:  snap.State,
		})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue(pathTenantID)
		if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Operator {
			log.Info().Str("tenant", tenantID).Msg("operator requested logout")
		}
		if err := s.sessions.Logout(r.Context(), tenantID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusOnlyResponse{Status: statusSuccess})
	}
}

func (s *Server) SendMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		res, err := s.dispatcher.SendOne(r.Context(), r.PathValue(pathTenantID), req.Destination, req.Body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SendMessageResponse{
			Status:    statusSuccess,
			MessageID: res.MessageID,
			Timestamp: res.Timestamp,
		})
	}
}

// SendMessagesHandler sends a destination to body mapping. Per item failures are
// reported in the results, only a session that is not ready fails the request.
func (s *Server) SendMessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var items map[string]string
		if err := readJSON(w, r, &items); err != nil {
			writeError(w, err)
			return
		}

		results, err := s.dispatcher.SendBulk(r.Context(), r.PathValue(pathTenantID), items)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SendMessagesResponse{Status: statusSuccess, Results: results})
	}
}

func (s *Server) ListSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps := s.sessions.List()
		out := make([]SessionSummary, 0, len(snaps))
		for _, snap := range snaps {
			out = append(out, SessionSummary{
				TenantID:  snap.TenantID,
				State:     snap.State,
				Active:    snap.Active,
				CreatedAt: snap.CreatedAt,
				ReadyAt:   snap.ReadyAt,
			})
		}
		writeJSON(w, http.StatusOK, SessionsResponse{Status: statusSuccess, Sessions: out})
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.Wrapf(errors.ErrInvalidRequest, "request body is empty")
		}
		return errors.Wrapf(errors.ErrInvalidRequest, "malformed request body: %v", err)
	}
	if dec.More() {
		return errors.Wrapf(errors.ErrInvalidRequest, "request body must hold a single JSON value")
	}
	return nil
}

// qrDataURL renders a pairing payload as a PNG data URL
func qrDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
