package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/miladnoo/Heray/monitoring"
	"github.com/miladnoo/Heray/v1/dashboard"
	"github.com/miladnoo/Heray/v1/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// liveMessage is one frame pushed to a live admin connection
type liveMessage struct {
	Type string `json:"type"`
	dashboard.Snapshot
}

// liveClient streams dashboard snapshots for one admin connection
type liveClient struct {
	conn   *websocket.Conn
	view   *dashboard.View
	notify chan struct{}
	done   chan struct{}
}

// handleAdminLive upgrades to a websocket that follows the admin session.
// Browsers cannot set headers on the upgrade, so the token may also arrive as ?access_token=.
func (h *V1Handler) handleAdminLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token := r.URL.Query().Get("access_token")
	if token == "" {
		token, _ = utils.ExtractBearerToken(r)
	}

	view := h.newView(token)
	if err := view.Start(r.Context()); err != nil {
		view.Close()
		slog.Error("Failed to resolve admin session", "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Unable to resolve session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		view.Close()
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &liveClient{
		conn:   conn,
		view:   view,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	client.run()
}

func (c *liveClient) run() {
	ctx := context.Background()
	monitoring.LiveSessionsAdd(ctx, 1)
	defer monitoring.LiveSessionsAdd(ctx, -1)

	c.view.OnChange(func(dashboard.Snapshot) { c.signal() })
	c.signal()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump()

	c.view.Close()
	close(c.done)
	<-writerDone
}

// signal wakes the writer. Pending signals coalesce since the writer always
// sends the latest snapshot.
func (c *liveClient) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *liveClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Live admin connection closed unexpectedly", "error", err)
			}
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.notify:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(liveMessage{Type: "snapshot", Snapshot: c.view.Snapshot()}); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
