package controller

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the lobby origin once it is finalized
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	GameID string `json:"gameId"` // game id, or "*" for all games
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"` // "game.updated", "subscribed", "unsubscribed", "ping"
	Payload interface{} `json:"payload"`
}

// HandleFeed upgrades the connection and streams game updates from the
// in-process bus. Per-game ordering follows the bus; a dropped update is
// recoverable by polling the game snapshot.
func (c *Controller) HandleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	c.App.Logger.Debug("feed client connected", zap.String("remote_addr", r.RemoteAddr))

	var mu sync.Mutex // serializes writes to conn
	send := func(msg ServerMessage) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(msg)
	}

	done := make(chan struct{})

	// Subscriptions are tracked per game id so unsubscribe can cancel
	// them; cancelling closes the bus channel, which ends the pump.
	var subMu sync.Mutex
	subs := make(map[string][]func())
	defer func() {
		subMu.Lock()
		defer subMu.Unlock()
		for _, cancels := range subs {
			for _, cancel := range cancels {
				cancel()
			}
		}
		subs = nil
	}()

	// Reader: subscription control messages.
	go func() {
		defer close(done)
		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Action {
			case "subscribe":
				ch, cancel := c.App.Bus.Subscribe(msg.GameID, 64)
				subMu.Lock()
				if subs == nil {
					subMu.Unlock()
					cancel()
					return
				}
				subs[msg.GameID] = append(subs[msg.GameID], cancel)
				subMu.Unlock()
				go pump(ch, send)
				_ = send(ServerMessage{Type: "subscribed", Payload: map[string]string{"gameId": msg.GameID}})
			case "unsubscribe":
				subMu.Lock()
				for _, cancel := range subs[msg.GameID] {
					cancel()
				}
				delete(subs, msg.GameID)
				subMu.Unlock()
				_ = send(ServerMessage{Type: "unsubscribed", Payload: map[string]string{"gameId": msg.GameID}})
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := send(ServerMessage{Type: "ping", Payload: map[string]int64{"timestamp": time.Now().Unix()}}); err != nil {
				return
			}
		}
	}
}

func pump(ch <-chan events.GameUpdate, send func(ServerMessage) error) {
	for u := range ch {
		if err := send(ServerMessage{Type: "game.updated", Payload: u}); err != nil {
			return
		}
	}
}
