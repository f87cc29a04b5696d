package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/session"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// synced waits, bounded by the sync timeout, for the session's view to load.
// On timeout the latest view is returned as it is.
func (s *Server) synced(ctx context.Context, sess *session.Session) core.ViewState {
	ctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()
	vs, _ := sess.WaitSynced(ctx)
	return vs
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	vs := s.synced(r.Context(), sess)
	writeJSON(w, http.StatusOK, newViewResponse(vs, sess.Prefs.Snapshot()))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Controller.Retry(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleViewStream sends every ViewState publication as one JSON text
// message. The current state is sent first.
func (s *Server) handleViewStream(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	logger := log.FromContext(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "WebSocket upgrade failed", log.FieldError, err)
		return
	}
	defer conn.Close()

	states := sess.Controller.State().Subscribe()
	defer states.Close()

	closed := make(chan struct{})
	go readPump(conn, closed)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	logger.InfoContext(r.Context(), "View stream opened")
	for {
		select {
		case <-closed:
			logger.InfoContext(r.Context(), "View stream closed by client")
			return
		case <-sess.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(writeWait))
			return
		case vs := <-states.Updates():
			payload, err := json.Marshal(newViewResponse(vs, sess.Prefs.Snapshot()))
			if err != nil {
				logger.ErrorContext(r.Context(), "Encode view failed", log.FieldError, err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.DebugContext(r.Context(), "View stream write failed", log.FieldError, err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and closes done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
