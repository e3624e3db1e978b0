package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvakili/kashef/api/protocol"
	"github.com/nvakili/kashef/discovery"
)

const (
	writeTimeout   = 10 * time.Second
	readLimitBytes = 64 * 1024
)

// Hub fans committed turn events out to websocket observers. Clients
// subscribe per conversation; monitors receive every event.
type Hub struct {
	convMu   sync.RWMutex
	convSubs map[string]map[*websocket.Conn]struct{}

	monitorMu    sync.RWMutex
	monitorConns map[*websocket.Conn]struct{}

	// gorilla/websocket allows one concurrent writer per connection, and
	// BroadcastTurn runs on each turn's handler goroutine.
	writeMu    sync.Mutex
	writeLocks map[*websocket.Conn]*sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		convSubs:     make(map[string]map[*websocket.Conn]struct{}),
		monitorConns: make(map[*websocket.Conn]struct{}),
		writeLocks:   make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (h *Hub) Subscribe(convID string, conn *websocket.Conn) {
	h.convMu.Lock()
	defer h.convMu.Unlock()
	if h.convSubs[convID] == nil {
		h.convSubs[convID] = make(map[*websocket.Conn]struct{})
	}
	h.convSubs[convID][conn] = struct{}{}
	slog.Info("ws: subscribed", "conversation_id", convID, "total", len(h.convSubs[convID]))
}

func (h *Hub) Unsubscribe(convID string, conn *websocket.Conn) {
	h.convMu.Lock()
	defer h.convMu.Unlock()
	if subs, ok := h.convSubs[convID]; ok {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.convSubs, convID)
		}
	}
}

func (h *Hub) UnsubscribeAll(conn *websocket.Conn) {
	h.convMu.Lock()
	for convID, subs := range h.convSubs {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.convSubs, convID)
		}
	}
	h.convMu.Unlock()

	h.monitorMu.Lock()
	delete(h.monitorConns, conn)
	h.monitorMu.Unlock()

	h.writeMu.Lock()
	delete(h.writeLocks, conn)
	h.writeMu.Unlock()
}

func (h *Hub) SubscribeMonitor(conn *websocket.Conn) {
	h.monitorMu.Lock()
	defer h.monitorMu.Unlock()
	h.monitorConns[conn] = struct{}{}
	slog.Info("ws: monitor connected", "total", len(h.monitorConns))
}

// BroadcastTurn publishes a committed turn to the conversation's
// subscribers and every monitor. Terminal turns go out as TypeFinal.
func (h *Hub) BroadcastTurn(resp discovery.TurnResponse) {
	msgType := protocol.TypeTurn
	if resp.StopReason != discovery.StopNone {
		msgType = protocol.TypeFinal
	}
	data, err := protocol.NewEnvelope(resp.ConversationID, msgType, resp).Encode()
	if err != nil {
		slog.Error("ws: encode turn event", "error", err)
		return
	}

	h.convMu.RLock()
	subs := make([]*websocket.Conn, 0, len(h.convSubs[resp.ConversationID]))
	for conn := range h.convSubs[resp.ConversationID] {
		subs = append(subs, conn)
	}
	h.convMu.RUnlock()

	for _, conn := range subs {
		if err := h.write(conn, data); err != nil {
			slog.Warn("ws: subscriber send failed", "error", err, "conversation_id", resp.ConversationID)
			h.Unsubscribe(resp.ConversationID, conn)
		}
	}

	h.monitorMu.RLock()
	monitors := make([]*websocket.Conn, 0, len(h.monitorConns))
	for conn := range h.monitorConns {
		monitors = append(monitors, conn)
	}
	h.monitorMu.RUnlock()

	for _, conn := range monitors {
		if err := h.write(conn, data); err != nil {
			h.monitorMu.Lock()
			delete(h.monitorConns, conn)
			h.monitorMu.Unlock()
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	mu := h.lockFor(conn)
	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (h *Hub) lockFor(conn *websocket.Conn) *sync.Mutex {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	mu, ok := h.writeLocks[conn]
	if !ok {
		mu = &sync.Mutex{}
		h.writeLocks[conn] = mu
	}
	return mu
}

type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, allowedOrigins []string) *WSHandler {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(readLimitBytes)

	if r.URL.Query().Get("role") == "monitor" {
		h.hub.SubscribeMonitor(conn)
	}

	go h.readLoop(conn)
}

// readLoop handles subscribe/unsubscribe control frames until the client
// disconnects.
func (h *WSHandler) readLoop(conn *websocket.Conn) {
	defer func() {
		h.hub.UnsubscribeAll(conn)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			h.sendError(conn, "malformed envelope")
			continue
		}

		switch env.Type {
		case protocol.TypeSubscribe:
			if env.ConversationID == "" {
				h.sendError(conn, "subscribe requires a conversation id")
				continue
			}
			h.hub.Subscribe(env.ConversationID, conn)
		case protocol.TypeUnsubscribe:
			h.hub.Unsubscribe(env.ConversationID, conn)
		default:
			h.sendError(conn, "unsupported message type")
		}
	}
}

func (h *WSHandler) sendError(conn *websocket.Conn, msg string) {
	data, err := protocol.NewEnvelope("", protocol.TypeError, protocol.ErrorBody{Message: msg}).Encode()
	if err != nil {
		return
	}
	_ = h.hub.write(conn, data)
}
