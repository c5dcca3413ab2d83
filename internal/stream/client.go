package stream

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler consumes decoded events. Listen invokes it synchronously, one event
// at a time, so per-connection ordering is preserved.
type Handler func(ctx context.Context, ev Event)

// wsConn is the subset of *websocket.Conn the client uses; tests substitute
// an in-memory implementation through the dial seam.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type dialFunc func(ctx context.Context, url string) (wsConn, error)

// Config holds stream client settings.
type Config struct {
	URL               string // base ws url, channel name is appended
	Auth              *Auth  // required for the user channel
	Handler           Handler
	KeepAliveInterval time.Duration
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	OnDown            func() // called once when the retry budget is exhausted
}

// Client maintains one logical subscription to a CLOB push channel across
// disconnects. It knows nothing about orders; decoded events go to Handler.
type Client struct {
	cfg  Config
	dial dialFunc

	mu      sync.Mutex
	conn    wsConn
	running bool

	writeMu sync.Mutex // serializes subscribe and keepalive writes
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// New builds a stream client with the default dialer.
func New(cfg Config) *Client {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		dial: func(ctx context.Context, url string) (wsConn, error) {
			dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
			conn, _, err := dialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Connect opens the underlying connection for a channel. Any failure leaves
// the client disconnected.
func (c *Client) Connect(ctx context.Context, channel Channel) error {
	conn, err := c.dial(ctx, c.cfg.URL+string(channel))
	if err != nil {
		c.setConn(nil)
		return err
	}
	c.setConn(conn)
	return nil
}

// Subscribe sends the subscription request for a channel. The user channel
// carries the credential triple and a market list; the market channel carries
// asset ids and no auth.
func (c *Client) Subscribe(channel Channel, markets, assetIDs []string) error {
	conn := c.getConn()
	if conn == nil {
		return errors.New("stream: not connected")
	}

	msg := subscribeMessage{Type: channel}
	switch channel {
	case ChannelUser:
		if c.cfg.Auth == nil {
			return errors.New("stream: user channel requires credentials")
		}
		msg.Auth = c.cfg.Auth
		msg.Markets = markets
	case ChannelMarket:
		msg.AssetIDs = assetIDs
	default:
		return errors.New("stream: invalid channel " + string(channel))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	log.Printf("stream: subscribed to %s channel", channel)
	return nil
}

// Start connects, subscribes and launches the listen and keep-alive loops.
// It returns an error only if the initial connection (including one full
// round of backoff) cannot be established.
func (c *Client) Start(ctx context.Context, channel Channel, markets, assetIDs []string) error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	if err := c.Connect(ctx, channel); err != nil {
		log.Printf("stream: initial connect failed: %v", err)
		if !c.Reconnect(ctx, channel, markets, assetIDs) {
			return errors.New("stream: could not establish connection")
		}
	} else if err := c.Subscribe(channel, markets, assetIDs); err != nil {
		log.Printf("stream: initial subscribe failed: %v", err)
		if !c.Reconnect(ctx, channel, markets, assetIDs) {
			return errors.New("stream: could not establish subscription")
		}
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.keepAlive(ctx, c.cfg.KeepAliveInterval)
	}()
	go func() {
		defer c.wg.Done()
		c.listen(ctx, channel, markets, assetIDs)
	}()
	return nil
}

// listen is the main receive loop. Events from one connection are handled
// strictly in arrival order; the handler runs to completion before the next
// frame is read.
func (c *Client) listen(ctx context.Context, channel Channel, markets, assetIDs []string) {
	for c.isRunning() {
		conn := c.getConn()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.isRunning() || ctx.Err() != nil {
				return
			}
			log.Printf("stream: connection lost: %v", err)
			if !c.Reconnect(ctx, channel, markets, assetIDs) {
				if !c.isRunning() || ctx.Err() != nil {
					return
				}
				log.Printf("⚠️ stream: retry budget exhausted, marking stream down")
				if c.cfg.OnDown != nil {
					c.cfg.OnDown()
				}
				return
			}
			continue
		}

		events, skipped, err := parseFrame(msg)
		if err != nil {
			// Malformed frames never terminate the loop.
			log.Printf("stream: dropping malformed frame: %v", err)
			continue
		}
		if skipped > 0 {
			log.Printf("stream: skipped %d events with unknown event_type", skipped)
		}
		for _, ev := range events {
			if c.cfg.Handler != nil {
				c.cfg.Handler(ctx, ev)
			}
		}
	}
}

// Reconnect retries connect+subscribe with exponential backoff: delays start
// at BaseDelay, double up to MaxDelay, and give up after MaxRetries attempts.
func (c *Client) Reconnect(ctx context.Context, channel Channel, markets, assetIDs []string) bool {
	delay := c.cfg.BaseDelay
	for attempt := 1; attempt <= c.cfg.MaxRetries && c.isRunning(); attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-c.stopCh:
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.cfg.MaxDelay {
			delay = c.cfg.MaxDelay
		}

		if err := c.Connect(ctx, channel); err != nil {
			log.Printf("stream: reconnect attempt %d failed: %v", attempt, err)
			continue
		}
		if err := c.Subscribe(channel, markets, assetIDs); err != nil {
			log.Printf("stream: re-subscribe attempt %d failed: %v", attempt, err)
			continue
		}
		log.Printf("✓ stream: reconnected after %d attempt(s)", attempt)
		return true
	}
	return false
}

// keepAlive sends a ping every interval while the client runs. A failed probe
// is left for the read loop to notice as a closed connection.
func (c *Client) keepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			conn := c.getConn()
			if conn == nil {
				continue
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second))
			c.writeMu.Unlock()
			if err != nil {
				log.Printf("stream: keepalive probe failed: %v", err)
			}
		}
	}
}

// Stop shuts the client down; safe to call more than once.
func (c *Client) Stop() {
	c.stopped.Do(func() {
		c.mu.Lock()
		c.running = false
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		close(c.stopCh)
		if conn != nil {
			_ = conn.Close()
		}
		c.wg.Wait()
		log.Printf("stream: stopped")
	})
}

func (c *Client) setConn(conn wsConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn != conn {
		_ = c.conn.Close()
	}
	c.conn = conn
}

func (c *Client) getConn() wsConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
