package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/bus"
)

// wsHub fans bus events out to connected WebSocket clients.
type wsHub struct {
	events   *bus.EventBus
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// wsEvent is the wire shape pushed to clients.
type wsEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

var broadcastTypes = []bus.EventType{
	bus.EventTypeTurnCompleted,
	bus.EventTypeTurnFallback,
	bus.EventTypeTurnModerated,
	bus.EventTypeMoodChanged,
	bus.EventTypeListenStarted,
	bus.EventTypeListenResult,
	bus.EventTypeListenPeriodic,
	bus.EventTypeListenQuit,
	bus.EventTypeListenError,
	bus.EventTypeListenEnded,
	bus.EventTypePersonaChanged,
	bus.EventTypeSessionReset,
	bus.EventTypeShuttingDown,
}

func newWSHub(events *bus.EventBus, logger zerolog.Logger) *wsHub {
	return &wsHub{
		events: events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "ws").Logger(),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// start subscribes the hub to the broadcastable bus events.
func (h *wsHub) start(ctx context.Context) {
	h.events.SubscribeMultiple(broadcastTypes, func(e bus.Event) {
		h.broadcast(wsEvent{Type: string(e.Type), Data: e.Data})
	})

	go func() {
		<-ctx.Done()
		h.closeAll()
	}()
}

func (h *wsHub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client connected")

	// Reads are only used to notice the client going away.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *wsHub) broadcast(event wsEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *wsHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.conns, conn)
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
