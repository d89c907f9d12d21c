package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait = 5 * time.Second

	// wsSendBuffer is how many frames a client may fall behind before it is
	// dropped.
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// wsHub fans store events out to connected browsers. broadcast only queues
// frames; each client has its own writer so a stalled browser cannot hold up
// a store commit.
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	log     logrus.FieldLogger
}

func newHub(log logrus.FieldLogger) *wsHub {
	return &wsHub{clients: make(map[*wsClient]struct{}), log: log}
}

func (h *wsHub) handleWebSocket(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Warn("ws upgrade error")
			return
		}

		c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

		// catch up before joining so the first frames are the current state
		h.mu.Lock()
		for _, ev := range store.Snapshot() {
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.WithError(err).Error("ws encode error")
				continue
			}
			c.send <- data
		}
		h.clients[c] = struct{}{}
		h.mu.Unlock()

		go h.writePump(c)
		go h.readPump(c)
	}
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

func (h *wsHub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *wsHub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("ws encode error")
		return
	}
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("ws client too slow, dropping")
			h.dropLocked(c)
		}
	}
	h.mu.Unlock()
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) writePump(c *wsClient) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(wsWriteWait))
}

func (h *wsHub) readPump(c *wsClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
