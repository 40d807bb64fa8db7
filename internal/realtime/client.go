package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/minhbui/trovia/internal/metrics"
	"go.uber.org/zap"
)

// frame is the wire envelope, client->server and server->client.
type frame struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`  // request correlation
	Sub        string         `json:"sub,omitempty"` // subscription id
	Query      *Query         `json:"query,omitempty"`
	Collection string         `json:"collection,omitempty"`
	DocID      string         `json:"doc_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Merge      bool           `json:"merge,omitempty"`
	Docs       []Document     `json:"docs,omitempty"`
	Changes    []Change       `json:"changes,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ErrClosed is returned for operations on a closed client.
var ErrClosed = errors.New("realtime client closed")

// Client maintains one WebSocket connection to the realtime service,
// multiplexing subscriptions and writes over it. On connection loss it
// reconnects with capped exponential backoff and replays every active
// subscription, so handlers see a fresh snapshot after a reconnect.
type Client struct {
	url    string
	token  func() string // bearer token supplier for the dial handshake
	logger *zap.Logger
	onConn func(connected bool)

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string]*Subscription
	acks   map[string]chan frame
	closed bool
	cancel context.CancelFunc
}

// Subscription is an active watched query.
type Subscription struct {
	id      string
	query   Query
	handler Handler
	client  *Client

	// mu serializes deliveries against Detach: once Detach returns, the
	// handler is guaranteed not to fire again.
	mu       sync.Mutex
	detached bool
}

// NewClient creates a realtime client for the given WebSocket URL. token is
// called at dial time to authenticate the connection; it may return "".
func NewClient(url string, token func() string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		url:    url,
		token:  token,
		logger: logger,
		subs:   make(map[string]*Subscription),
		acks:   make(map[string]chan frame),
	}
}

// SetConnHandler registers a callback fired with true after every successful
// dial and false when an established connection drops (not on Close). It must
// be set before Start.
func (c *Client) SetConnHandler(fn func(connected bool)) {
	c.onConn = fn
}

// Start launches the connection loop. It returns immediately; subscriptions
// made before the first successful dial are registered once connected.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Close tears the connection down and stops reconnecting.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("realtime dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		subs := make([]*Subscription, 0, len(c.subs))
		for _, s := range c.subs {
			subs = append(subs, s)
		}
		c.mu.Unlock()

		c.logger.Info("realtime connected", zap.Int("resubscribed", len(subs)))
		if c.onConn != nil {
			c.onConn(true)
		}
		for _, s := range subs {
			if err := c.writeFrame(frame{Type: "subscribe", Sub: s.id, Query: &s.query}); err != nil {
				break
			}
		}

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		dropped := !c.closed
		c.mu.Unlock()
		_ = conn.Close()
		if dropped && ctx.Err() == nil && c.onConn != nil {
			c.onConn(false)
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{}
	if tok := c.token(); tok != "" {
		header["Authorization"] = []string{"Bearer " + tok}
	}
	conn, _, err := dialer.DialContext(ctx, c.url, header)
	return conn, err
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.logger.Warn("realtime read failed", zap.Error(err))
			return
		}
		switch f.Type {
		case "snapshot":
			if s := c.lookup(f.Sub); s != nil {
				s.deliver(f.Docs, nil, nil)
			}
		case "change":
			for _, ch := range f.Changes {
				metrics.RealtimeEvents.WithLabelValues(ch.Doc.Collection, string(ch.Type)).Inc()
			}
			if s := c.lookup(f.Sub); s != nil {
				s.deliver(nil, f.Changes, nil)
			}
		case "error":
			if s := c.lookup(f.Sub); s != nil {
				s.deliver(nil, nil, fmt.Errorf("subscription error: %s", f.Error))
			}
		case "ack":
			c.mu.Lock()
			ch := c.acks[f.ID]
			delete(c.acks, f.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- f
			}
		}
	}
}

func (c *Client) lookup(subID string) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[subID]
}

// writeFrame serializes writes; gorilla connections allow one writer.
func (c *Client) writeFrame(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return errors.New("realtime not connected")
	}
	return c.conn.WriteJSON(f)
}

// Watch registers a live query. The handler first receives the initial
// snapshot, then incremental change batches. It also refires with a fresh
// snapshot after every reconnect.
func (c *Client) Watch(q Query, h Handler) (Detacher, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s := &Subscription{
		id:      uuid.New().String(),
		query:   q,
		handler: h,
		client:  c,
	}
	c.subs[s.id] = s
	connected := c.conn != nil
	c.mu.Unlock()

	if connected {
		if err := c.writeFrame(frame{Type: "subscribe", Sub: s.id, Query: &s.query}); err != nil {
			c.logger.Warn("subscribe send failed, will retry on reconnect", zap.Error(err))
		}
	}
	return s, nil
}

// Detach removes the subscription. Idempotent; once it returns, the handler
// will not be invoked again.
func (s *Subscription) Detach() {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	s.detached = true
	s.mu.Unlock()

	c := s.client
	c.mu.Lock()
	delete(c.subs, s.id)
	c.mu.Unlock()
	_ = c.writeFrame(frame{Type: "unsubscribe", Sub: s.id})
}

func (s *Subscription) deliver(snapshot []Document, changes []Change, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	s.handler(snapshot, changes, err)
}

// request sends a write frame and waits for its ack.
func (c *Client) request(ctx context.Context, f frame) (frame, error) {
	f.ID = uuid.New().String()
	ch := make(chan frame, 1)
	c.mu.Lock()
	c.acks[f.ID] = ch
	c.mu.Unlock()

	if err := c.writeFrame(f); err != nil {
		c.mu.Lock()
		delete(c.acks, f.ID)
		c.mu.Unlock()
		return frame{}, err
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return frame{}, fmt.Errorf("realtime write: %s", ack.Error)
		}
		return ack, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.acks, f.ID)
		c.mu.Unlock()
		return frame{}, ctx.Err()
	}
}

// Add creates a document with a client-generated id and returns that id.
// Fields valued ServerTimestamp are stamped by the service at write time.
func (c *Client) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	docID := uuid.New().String()
	_, err := c.request(ctx, frame{Type: "add", Collection: collection, DocID: docID, Data: data})
	if err != nil {
		return "", err
	}
	return docID, nil
}

// Set writes a document at a known id. With merge, only the given fields
// are updated and the rest of the document is preserved.
func (c *Client) Set(ctx context.Context, collection, docID string, data map[string]any, merge bool) error {
	_, err := c.request(ctx, frame{Type: "set", Collection: collection, DocID: docID, Data: data, Merge: merge})
	return err
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, collection, docID string) error {
	_, err := c.request(ctx, frame{Type: "delete", Collection: collection, DocID: docID})
	return err
}
