package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jrsteele09/wa-session-gateway/sessions"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait     = 10 * time.Second
	wsReadLimit     = 512
	wsStatusEnded   = "ended"
	wsStatusPending = "pending"
)

// QRFrame is pushed on every change of the tenant's session until it is ready or ends
type QRFrame struct {
	Status  string         `json:"status"`
	State   sessions.State `json:"state"`
	QR      string         `json:"qr,omitempty"`
	QRImage string         `json:"qrImage,omitempty"`
}

// QRStreamHandler upgrades to a websocket and streams pairing progress. Errors that
// happen before the upgrade are plain JSON responses.
func (s *Server) QRStreamHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: s.websocketOriginAllowed}

	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue(pathTenantID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		updates, err := s.sessions.Watch(ctx, tenantID)
		if err != nil {
			writeError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("tenant", tenantID).Msg("qr stream upgrade failed")
			return
		}
		defer conn.Close()
		conn.SetReadLimit(wsReadLimit)

		// The client never sends anything we act on; reading only detects a hang up.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		var last QRFrame
		for snap := range updates {
			frame := frameFor(snap)
			if frame == last {
				continue
			}
			last = frame

			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				log.Debug().Err(err).Str("tenant", tenantID).Msg("qr stream closed by client")
				return
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

func frameFor(snap sessions.Snapshot) QRFrame {
	frame := QRFrame{State: snap.State}
	switch {
	case snap.Active:
		frame.Status = statusActive
	case snap.State.Terminal():
		frame.Status = wsStatusEnded
	case snap.QRCode != "":
		frame.Status = statusQR
		frame.QR = snap.QRCode
		if image, err := qrDataURL(snap.QRCode); err == nil {
			frame.QRImage = image
		}
	default:
		frame.Status = wsStatusPending
	}
	return frame
}

// websocketOriginAllowed applies the CORS allow list to upgrades. Requests without an
// Origin header are not from a browser and are allowed.
func (s *Server) websocketOriginAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.config.GetAllowedOrigins()
	if allowed.IsAllowedOrigin("*") || allowed.IsAllowedOrigin(origin) {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
