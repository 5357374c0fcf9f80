package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"coinbase-trading-bot/internal/events"
	"coinbase-trading-bot/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// same-host dashboard; CORS on the REST side is the real gate
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHub pushes every bus event to connected dashboard clients
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	logger  *logging.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan events.Event
}

func newWSHub() *wsHub {
	return &wsHub{
		clients: make(map[*wsClient]struct{}),
		logger:  logging.WithComponent("ws"),
	}
}

// attach subscribes the hub to all bus events
func (h *wsHub) attach(bus *events.EventBus) {
	if bus == nil {
		return
	}
	bus.SubscribeAll(func(event events.Event) {
		h.broadcast(event)
	})
}

func (h *wsHub) broadcast(event events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// slow client, drop it
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *wsHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) handleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err.Error())
		return
	}

	client := &wsClient{conn: conn, send: make(chan events.Event, 64)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *wsHub) writeLoop(client *wsClient) {
	ping := time.NewTicker(30 * time.Second)
	defer func() {
		ping.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(event); err != nil {
				h.remove(client)
				return
			}
		case <-ping.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}

// readLoop exists to notice closes; clients send nothing we act on
func (h *wsHub) readLoop(client *wsClient) {
	client.conn.SetReadLimit(512)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}

func (h *wsHub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}
