package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"home-control/internal/domain"
)

const (
	wsReadLimit  = 64 << 10
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleAttributes answers one JSON result per JSON request for as long as
// the client keeps the connection open.
func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	connID := uuid.NewString()
	logger := s.logger.With("conn_id", connID, "user_id", userID)
	logger.Debug("attribute channel opened")

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
		logger.Debug("attribute channel closed")
	}()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Pings go through WriteControl, which may run concurrently with the
	// reply writes below.
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("attribute channel read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		result := s.handleAttributeMessage(r, msg, userID)

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(result); err != nil {
			logger.Warn("attribute channel write error", "error", err)
			return
		}
	}
}

func (s *Server) handleAttributeMessage(r *http.Request, msg []byte, userID int64) domain.AttributeResult {
	var req domain.AttributeRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return domain.AttributeError("invalid JSON message")
	}
	return s.deps.Attributes.Handle(r.Context(), req, userID)
}
