// Package pushchan maintains the persistent event channel to the gateway:
// one websocket connection, reconnected forever, carrying named JSON events
// in both directions.
package pushchan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	// Events the gateway pushes to the bot.
	EventTelegramResponse = "telegram_response"
	EventUserAuthed       = "user_authed"
	// Events the bot emits.
	EventBotStatus    = "bot_status"
	EventBotHeartbeat = "bot_heartbeat"
)

// Event is one frame on the channel.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HandlerFunc consumes one inbound event payload. Returning an error marks
// the event as a protocol violation: it is logged and dropped, never fatal.
type HandlerFunc func(ctx context.Context, data json.RawMessage) error

type Options struct {
	URL    string
	Secret string
	Logger *slog.Logger
	Dialer *websocket.Dialer
	// ReconnectDelay is fixed, not exponential. Defaults to 5s.
	ReconnectDelay time.Duration
	// HeartbeatInterval defaults to 30s.
	HeartbeatInterval time.Duration
}

type Client struct {
	url               string
	secret            string
	logger            *slog.Logger
	dialer            *websocket.Dialer
	reconnectDelay    time.Duration
	heartbeatInterval time.Duration
	clientID          string

	status atomic.Int32

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	running  bool

	connMu        sync.Mutex
	conn          *websocket.Conn
	lastHeartbeat time.Time
}

func New(opts Options) (*Client, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, fmt.Errorf("push channel url is required")
	}
	secret := strings.TrimSpace(opts.Secret)
	if secret == "" {
		return nil, fmt.Errorf("push channel secret is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	heartbeatInterval := opts.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &Client{
		url:               url,
		secret:            secret,
		logger:            logger,
		dialer:            dialer,
		reconnectDelay:    reconnectDelay,
		heartbeatInterval: heartbeatInterval,
		clientID:          uuid.NewString(),
		handlers:          make(map[string]HandlerFunc),
	}, nil
}

// Handle registers a handler for a named event. Registration is validated
// here so a misconfigured dispatch table fails at startup, not mid-stream.
func (c *Client) Handle(name string, fn HandlerFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("event name is required")
	}
	if fn == nil {
		return fmt.Errorf("handler for %q is required", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("handlers must be registered before Run")
	}
	if _, ok := c.handlers[name]; ok {
		return fmt.Errorf("handler for %q already registered", name)
	}
	c.handlers[name] = fn
	return nil
}

func (c *Client) Status() Status {
	return Status(c.status.Load())
}

func (c *Client) LastHeartbeat() time.Time {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.lastHeartbeat
}

// Run drives the connect/read/reconnect cycle until ctx is cancelled.
// Connection loss is never fatal; every drop schedules a retry after the
// fixed delay.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	defer c.status.Store(int32(StatusDisconnected))

	for {
		if ctx.Err() != nil {
			return nil
		}
		c.status.Store(int32(StatusConnecting))
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.status.Store(int32(StatusDisconnected))
			c.logger.Warn("push_connect_error", "url", c.url, "error", err.Error(), "retry_in", c.reconnectDelay.String())
			if err := sleepWithContext(ctx, c.reconnectDelay); err != nil {
				return nil
			}
			continue
		}

		c.setConn(conn)
		c.status.Store(int32(StatusConnected))
		c.logger.Info("push_connected", "url", c.url)

		if err := c.Emit(EventBotStatus, map[string]any{
			"status":    "UP",
			"message":   "bot is connected",
			"client_id": c.clientID,
		}); err != nil {
			c.logger.Warn("push_presence_error", "error", err.Error())
		}

		connCtx, cancel := context.WithCancel(ctx)
		go c.heartbeatLoop(connCtx)
		go func() {
			// Unblock the read loop when the process shuts down.
			<-connCtx.Done()
			_ = conn.Close()
		}()

		readErr := c.readLoop(connCtx, conn)
		cancel()
		c.setConn(nil)
		c.status.Store(int32(StatusDisconnected))
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		if readErr != nil && !errors.Is(readErr, context.Canceled) {
			c.logger.Warn("push_disconnected", "error", readErr.Error(), "retry_in", c.reconnectDelay.String())
		}
		if err := sleepWithContext(ctx, c.reconnectDelay); err != nil {
			return nil
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.secret)
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.dispatch(ctx, raw)
	}
}

func (c *Client) dispatch(ctx context.Context, raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Warn("push_event_invalid", "error", err.Error())
		return
	}
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		c.logger.Warn("push_event_invalid", "error", "missing event name")
		return
	}
	c.mu.Lock()
	fn := c.handlers[name]
	c.mu.Unlock()
	if fn == nil {
		c.logger.Debug("push_event_unhandled", "event", name)
		return
	}
	if err := fn(ctx, ev.Data); err != nil {
		c.logger.Warn("push_event_dropped", "event", name, "error", err.Error())
	}
}

// Emit sends a named event. The write lock serializes heartbeat and handler
// writes on the shared connection.
func (c *Client) Emit(name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Event{Name: name, Data: raw})
	if err != nil {
		return err
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("push channel is not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// heartbeatLoop emits a liveness signal immediately after connect and then
// at the fixed interval. It stops without emitting as soon as the
// connection leaves Connected.
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil || c.Status() != StatusConnected {
			return
		}
		if err := c.Emit(EventBotHeartbeat, map[string]any{"status": "UP"}); err != nil {
			c.logger.Warn("push_heartbeat_error", "error", err.Error())
		} else {
			c.connMu.Lock()
			c.lastHeartbeat = time.Now()
			c.connMu.Unlock()
			c.logger.Debug("push_heartbeat_sent")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
