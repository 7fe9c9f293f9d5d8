package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + 10*time.Second
)

// Event is pushed to the browser over /api/events
type Event struct {
	Type string `json:"type"`
}

// Events upgrades to a websocket and sends a "state" event after every
// change to the client's controller
func (h *Handlers) Events(c *gin.Context) {
	// subscribe before the handshake completes so no change is missed
	ctrl := controller(c)
	changed, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.l.Error("upgrade ws", "err", err)
		return
	}
	defer conn.Close()

	// the reader only services control frames and notices the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
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
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-changed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Event{Type: "state"}); err != nil {
				h.l.Debug("write event", "client", ctrl.ClientID(), "err", err)
				return
			}
		}
	}
}
