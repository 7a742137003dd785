package sink

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
)

const (
	writeWait  = 2 * time.Second
	clientSend = 8 // queued results per client
)

// Broadcaster pushes every result to the connected websocket clients. Slow
// clients lose results rather than delaying the hub.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	latest  *activity.Result
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan activity.Result
	done chan struct{}
}

// NewBroadcaster creates a broadcaster with no clients.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[*wsClient]struct{}{},
	}
}

func (b *Broadcaster) Name() string { return "websocket" }

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request and streams results until the client goes
// away. A new client first receives the latest result, if any.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket: upgrade error: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan activity.Result, clientSend), done: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	if b.latest != nil {
		c.send <- *b.latest
	}
	b.mu.Unlock()

	go b.readLoop(c)
	b.writeLoop(c)
}

// readLoop discards client messages and notices disconnects.
func (b *Broadcaster) readLoop(c *wsClient) {
	defer close(c.done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) writeLoop(c *wsClient) {
	defer b.remove(c)
	for {
		select {
		case <-c.done:
			return
		case res, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(res); err != nil {
				monitoring.Logf("websocket: write error: %v", err)
				return
			}
		}
	}
}

func (b *Broadcaster) remove(c *wsClient) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.conn.Close()
}

func (b *Broadcaster) Emit(r activity.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.latest = &r
	for c := range b.clients {
		select {
		case c.send <- r:
		default:
			monitoring.Logf("websocket: client %s is slow, dropping window %d", c.conn.RemoteAddr(), r.WindowSeq)
		}
	}
	return nil
}

// Close disconnects every client.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for c := range b.clients {
		close(c.send)
	}
	return nil
}
