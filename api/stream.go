package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/KKould/snowtree/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local app, same-machine clients
	},
}

const streamPingInterval = 30 * time.Second

// StreamPanel upgrades to a WebSocket and streams the panel's normalized
// entries as JSON messages until the client disconnects.
func (h *Handlers) StreamPanel(c *gin.Context) {
	panelID := c.Param("id")
	if h.panels.GetPanel(panelID) == nil {
		RespondNotFound(c, "panel not found")
		return
	}

	log.MarkHijacked(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Str("panel", panelID).Msg("failed to upgrade websocket")
		return
	}
	defer conn.Close()

	entries, cancel := h.sessions.SubscribeEntries(panelID)
	defer cancel()

	logger.Info().Str("panel", panelID).Msg("panel stream opened")

	// Reader goroutine notices client disconnects; inbound messages are ignored
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				logger.Debug().Err(err).Str("panel", panelID).Msg("panel stream write failed")
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}

		case <-done:
			logger.Info().Str("panel", panelID).Msg("panel stream closed by client")
			return
		}
	}
}
