package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// envelope is the wire format for one broadcast message.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub is the primary-side Bus: it serves a websocket endpoint that
// agents connect to and broadcasts every Send to all connected agents.
// Agents that connect after a Send simply miss it; metadata propagation
// tolerates that window.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates a broadcast hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// Listen binds the agent message channel on addr and starts serving.
// Bind failures surface here; the accept loop runs in the background.
func (h *Hub) Listen(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/channel", h.handleAgent)
	h.server = &http.Server{Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("message channel listen on %s: %w", addr, err)
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.log.Error("message channel server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (h *Hub) handleAgent(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("agent channel upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.log.Info("agent connected to message channel", zap.String("remote", conn.RemoteAddr().String()))

	// Drain reads so pings and close frames are processed; agents never
	// send application messages upstream.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// Send broadcasts one message to every connected agent. Write failures
// drop the affected agent and do not fail the broadcast.
func (h *Hub) Send(msgType string, payload []byte) error {
	data, err := json.Marshal(envelope{Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msgType, err)
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Warn("dropping agent after write failure", zap.Error(err))
			h.drop(conn)
		}
	}
	return nil
}

// RegisterHandler is a no-op on the hub: the primary only sends.
func (h *Hub) RegisterHandler(msgType string, fn Handler) {}

// Close shuts the listener down and closes all agent connections.
func (h *Hub) Close() error {
	h.mu.Lock()
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	if h.server != nil {
		return h.server.Close()
	}
	return nil
}

// Client is the agent-side Bus: it connects to the primary's hub and
// dispatches received messages to registered handlers. Send is a no-op
// because the channel is one-way.
type Client struct {
	log    *zap.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string][]Handler
}

// NewClient creates an unconnected agent channel client.
func NewClient(log *zap.Logger) *Client {
	return &Client{
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second, Proxy: http.ProxyFromEnvironment},
		handlers: make(map[string][]Handler),
	}
}

// Connect dials the primary's message channel and starts the dispatch
// loop. Handlers may be registered before or after connecting.
func (c *Client) Connect(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("message channel dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("message channel dial failed: %w", err)
	}
	c.conn = conn

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("message channel closed", zap.Error(err))
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("discarding malformed channel message", zap.Error(err))
			continue
		}
		c.dispatch(env.Type, env.Payload)
	}
}

func (c *Client) dispatch(msgType string, payload []byte) {
	c.mu.Lock()
	fns := append([]Handler(nil), c.handlers[msgType]...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

// Send is a no-op: agents never send on the one-way channel.
func (c *Client) Send(msgType string, payload []byte) error {
	return nil
}

// RegisterHandler subscribes a handler for msgType.
func (c *Client) RegisterHandler(msgType string, fn Handler) {
	c.mu.Lock()
	c.handlers[msgType] = append(c.handlers[msgType], fn)
	c.mu.Unlock()
}

// Close closes the connection to the primary.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
