package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultWSURL is the raw stream endpoint; subscriptions are added with SUBSCRIBE.
const DefaultWSURL = "wss://stream.binance.com:9443/ws"

// ErrClientClosed is returned by operations on a closed WSClient.
var ErrClientClosed = errors.New("client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// ReadTimeout is the silence after which the connection is considered dead.
	// Server pings extend it.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// AckTimeout bounds the wait for a SUBSCRIBE/UNSUBSCRIBE acknowledgement.
	AckTimeout time.Duration
	// BufferSize is the capacity of the Messages channel.
	BufferSize int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      10 * time.Minute,
		WriteTimeout:     10 * time.Second,
		AckTimeout:       30 * time.Second,
		BufferSize:       1024,
	}
}

// WSClient implements Stream using gorilla/websocket.
type WSClient struct {
	config WSClientConfig

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool

	// pending maps request ID to the channel waiting for its acknowledgement
	pending   map[string]chan error
	pendingMu sync.Mutex

	msgs chan []byte

	errMu sync.Mutex
	err   error

	done chan struct{}
	wg   sync.WaitGroup
}

// Compile-time interface check.
var _ Stream = (*WSClient)(nil)

// DialStream connects to endpoint (DefaultWSURL when empty) and starts reading.
func DialStream(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if endpoint == "" {
		endpoint = DefaultWSURL
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &WSClient{
		config:  cfg,
		conn:    conn,
		pending: make(map[string]chan error),
		msgs:    make(chan []byte, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// Subscribe adds streams to the connection and waits for the acknowledgement.
func (c *WSClient) Subscribe(ctx context.Context, streams []string) error {
	return c.request(ctx, "SUBSCRIBE", streams)
}

// Unsubscribe removes streams from the connection.
func (c *WSClient) Unsubscribe(ctx context.Context, streams []string) error {
	return c.request(ctx, "UNSUBSCRIBE", streams)
}

// Messages yields raw event payloads. Closed when the connection ends.
func (c *WSClient) Messages() <-chan []byte {
	return c.msgs
}

// Err reports why the connection ended. Nil while open and after Close.
func (c *WSClient) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *WSClient) request(ctx context.Context, method string, streams []string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	id := uuid.NewString()
	req := wsRequest{
		Method: method,
		Params: streams,
		ID:     id,
	}

	ackCh := make(chan error, 1)
	c.pendingMu.Lock()
	c.pending[id] = ackCh
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.config.AckTimeout)
	defer timer.Stop()

	select {
	case err, ok := <-ackCh:
		if !ok {
			return ErrClientClosed
		}
		return err
	case <-timer.C:
		forget()
		return fmt.Errorf("%s timeout after %s", method, c.config.AckTimeout)
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.config.WriteTimeout))
	c.writeMu.Unlock()
	err := c.conn.Close()

	c.wg.Wait()
	return err
}

// readLoop reads until the connection fails or is closed, then closes Messages.
// The connection is not re-established.
func (c *WSClient) readLoop() {
	defer c.wg.Done()
	defer close(c.msgs)
	defer c.failPending()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.errMu.Lock()
				c.err = fmt.Errorf("websocket read: %w", err)
				c.errMu.Unlock()
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		if c.handleResponse(message) {
			continue
		}

		// Block until the consumer takes it; never drop events here.
		select {
		case c.msgs <- message:
		case <-c.done:
			return
		}
	}
}

// handleResponse routes request acknowledgements and errors.
// Returns false for event payloads.
func (c *WSClient) handleResponse(message []byte) bool {
	var resp wsResponse
	if err := json.Unmarshal(message, &resp); err != nil || resp.ID == nil {
		return false
	}

	id := string(*resp.ID)
	var sid string
	if err := json.Unmarshal(*resp.ID, &sid); err == nil {
		id = sid
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if ok {
		var ackErr error
		if resp.Error != nil {
			ackErr = resp.Error
		}
		ch <- ackErr
	}
	return true
}

func (c *WSClient) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// WebSocket message types

type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     string   `json:"id"`
}

type wsResponse struct {
	Result json.RawMessage  `json:"result"`
	ID     *json.RawMessage `json:"id"`
	Error  *wsError         `json:"error"`
}

type wsError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("stream request error %d: %s", e.Code, e.Msg)
}
