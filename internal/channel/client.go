package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/driver-agent/internal/observability"
)

// Envelope is the wire frame for every message on the dispatch channel.
// Replies to acknowledged emits carry the same ID as the request.
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler processes one inbound event. Handlers for a connection are
// invoked serially from the read loop, so arrival order per event name
// is preserved and a handler never races another.
type Handler func(data json.RawMessage)

var ErrNotConnected = errors.New("channel not connected")

// Client maintains the persistent websocket to the dispatch backend:
// fire-and-forget emits, emits with acknowledgement, named subscriptions,
// and automatic reconnection with capped exponential backoff.
type Client struct {
	url    string
	header http.Header
	log    *slog.Logger

	dialer     *websocket.Dialer
	backoffMin time.Duration
	backoffMax time.Duration

	writeMu sync.Mutex // guards conn writes

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	closed       bool
	handlers     map[string][]Handler
	pending      map[string]chan json.RawMessage
	onConnect    []func()
	onDisconnect []func(err error)
}

func NewClient(url, token string, log *slog.Logger) *Client {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return &Client{
		url:        url,
		header:     h,
		log:        log,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoffMin: time.Second,
		backoffMax: 30 * time.Second,
		handlers:   make(map[string][]Handler),
		pending:    make(map[string]chan json.RawMessage),
	}
}

// Subscribe registers a handler for a named inbound event. Register all
// handlers before Run; re-registration appends.
func (c *Client) Subscribe(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnConnect registers a hook fired after every successful (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers a hook fired when an established connection drops.
func (c *Client) OnDisconnect(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run dials and services the connection until ctx is cancelled or Close is
// called. Connection loss is not an error: Run backs off and redials.
func (c *Client) Run(ctx context.Context) {
	backoff := c.backoffMin
	for {
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			c.log.Warn("channel dial failed", "err", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			continue
		}
		backoff = c.backoffMin
		c.attach(conn)
		observability.ChannelConnectsTotal.Inc()
		c.log.Info("channel connected", "url", c.url)
		for _, fn := range c.snapshotConnectHooks() {
			fn()
		}

		err = c.readLoop(conn)
		c.detach(err)
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		observability.ChannelDisconnectsTotal.Inc()
		c.log.Warn("channel disconnected", "err", err)
	}
}

// Emit sends a fire-and-forget event.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	return c.write(Envelope{Event: event, Data: data})
}

// EmitWithAck sends an event and waits for the backend's reply envelope
// carrying the same correlation id, or fails when ctx expires.
func (c *Client) EmitWithAck(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event, err)
	}
	id := uuid.NewString()
	ch := make(chan json.RawMessage, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(Envelope{Event: event, ID: id, Data: data}); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-ch:
		return reply, nil
	}
}

// Close tears the connection down for good; Run returns.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
}

func (c *Client) detach(err error) {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.connected = false
	hooks := make([]func(error), len(c.onDisconnect))
	copy(hooks, c.onDisconnect)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (c *Client) snapshotConnectHooks() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]func(), len(c.onConnect))
	copy(out, c.onConnect)
	return out
}

func (c *Client) write(env Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(env)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			observability.ChannelBadFramesTotal.Inc()
			c.log.Warn("channel frame discarded", "err", err)
			continue
		}
		if env.ID != "" {
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			c.mu.Unlock()
			if ok {
				ch <- env.Data
				continue
			}
		}
		for _, h := range c.handlersFor(env.Event) {
			h(env.Data)
		}
	}
}

func (c *Client) handlersFor(event string) []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs := c.handlers[event]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}
