package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/wishes/internal/models"
)

const (
	sessionWSReadLimit    = 4 << 10
	sessionWSPongWait     = 60 * time.Second
	sessionWSPingInterval = 30 * time.Second
	sessionWSWriteWait    = 10 * time.Second
)

// A nil CheckOrigin rejects handshakes whose Origin host differs from the request host.
var sessionWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// sessionWSMessage is the JSON shape sent to the client.
type sessionWSMessage struct {
	Type    string                 `json:"type"`
	Session models.SessionSnapshot `json:"session"`
}

// SessionWS handles GET /ws. It sends the current session, then one message per transition.
// Client messages are ignored.
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := sessionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("session ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	conn.SetReadLimit(sessionWSReadLimit)
	conn.SetReadDeadline(time.Now().Add(sessionWSPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(sessionWSPongWait))
		return nil
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Msg("session ws read")
				}
				return
			}
		}
	}()

	if err := writeWSJSON(conn, sessionWSMessage{Type: "session", Session: h.session.Snapshot()}); err != nil {
		log.Debug().Err(err).Msg("session ws write")
		return
	}

	ticker := time.NewTicker(sessionWSPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeWSJSON(conn, sessionWSMessage{Type: "session", Session: snap}); err != nil {
				log.Debug().Err(err).Msg("session ws write")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(sessionWSWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeWSJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(sessionWSWriteWait))
	return conn.WriteJSON(v)
}
