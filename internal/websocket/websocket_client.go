// Package websocket provides the WebSocket client used by market-data feeds.
//
// A Client dials one feed endpoint, sends the subscription messages, and then
// hands every inbound frame to the configured Handler, which decodes it into
// tick events on the client's TickChan. The client keeps the connection alive
// with pings and shuts down when its context is cancelled or Close is called.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"datarecorder/internal/model"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultPingPeriod       = 15 * time.Second
	defaultSendTimeout      = 5 * time.Second
	defaultReadLimit        = 1 << 20 // 1MB
	defaultHandshakeTimeout = 10 * time.Second

	// defaultTickBuffer is the TickChan capacity. A full channel blocks the read
	// loop rather than dropping ticks.
	defaultTickBuffer = 4096
)

// ErrClientShuttingDown indicates that the client is in the process of shutting down.
var ErrClientShuttingDown = errors.New("client is shutting down")

// Handler decodes one inbound frame and sends the resulting ticks to out. ctx
// is the client's context; a send blocked on a full out must give up once ctx
// is done.
type Handler func(ctx context.Context, data []byte, out chan<- model.TickEvent) error

// Config defines settings for the WebSocket client.
type Config struct {
	// Endpoint is the WebSocket URL to connect to. Required.
	Endpoint string

	// Handler is called for each inbound text or binary frame. Required.
	Handler Handler

	// TLSInsecureSkip disables TLS certificate verification.
	TLSInsecureSkip bool

	// PingPeriod is the interval between pings. The read deadline is twice this.
	PingPeriod time.Duration

	// SendTimeout bounds each control write.
	SendTimeout time.Duration

	// TickBuffer is the capacity of TickChan.
	TickBuffer int

	// SubscriptionMessages are sent, in order, right after the handshake.
	SubscriptionMessages [][]byte
}

// Client wraps a websocket.Conn with lifecycle and message handling logic.
type Client struct {
	conn atomic.Value // *websocket.Conn

	// TickChan delivers decoded tick events. It is closed when the read loop exits.
	TickChan chan model.TickEvent

	disconnect chan struct{}
	errChan    chan error

	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// NewWebsocketClient validates cfg, connects, subscribes and starts the
// background loops. The returned client is already streaming.
func NewWebsocketClient(ctx context.Context, cfg Config) (*Client, error) {
	// Validate required configuration fields
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("message handler is required")
	}

	// Apply defaults
	if cfg.SubscriptionMessages == nil {
		cfg.SubscriptionMessages = [][]byte{}
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.TickBuffer <= 0 {
		cfg.TickBuffer = defaultTickBuffer
	}

	ctx, cancel := context.WithCancel(ctx)

	client := &Client{
		cfg:        &cfg,
		ctx:        ctx,
		cancel:     cancel,
		disconnect: make(chan struct{}),
		errChan:    make(chan error, 1),
		TickChan:   make(chan model.TickEvent, cfg.TickBuffer),
	}

	if err := client.run(cfg.SubscriptionMessages); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start client: %w", err)
	}

	return client, nil
}

// run dials, subscribes and starts the read, ping and shutdown goroutines.
func (c *Client) run(subMsgs [][]byte) (err error) {
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "websocket").
		Logger()

	// Establish the connection
	conn, err := c.dial(c.ctx)
	if err != nil {
		return fmt.Errorf("initial dial failed: %w", err)
	}

	// Release the connection if any later step fails
	defer func() {
		if err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				logger.Warn().Err(closeErr).Msg("error closing connection during cleanup")
			}
		}
	}()

	c.conn.Store(conn)

	// Configure keepalive: every pong extends the read deadline
	conn.SetReadLimit(defaultReadLimit)
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.PingPeriod * 2)); err != nil {
			logger.Warn().Err(err).Msg("failed to set read deadline in pong handler")
		}
		return nil
	})

	// Send subscription messages
	for _, msg := range subMsgs {
		if err = conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Error().Err(err).Msg("subscription error")
			return err
		}
	}
	logger.Info().Int("messages", len(subMsgs)).Msg("subscribed")

	// Start background loops
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.pingLoop()
	}()
	// Not tracked by wg: Close, which it calls, waits on wg.
	go c.shutdownListener()

	return nil
}

// readLoop reads frames until the connection fails or the client is closed.
// Handler errors and panics are logged and the frame is skipped.
func (c *Client) readLoop() {
	conn := c.conn.Load().(*websocket.Conn)
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "readLoop").
		Logger()

	defer func() {
		logger.Info().Msg("read loop exiting")
		close(c.disconnect)
		close(c.TickChan)

		select {
		case c.errChan <- ErrClientShuttingDown:
		default:
		}
	}()

	for {
		if c.ctx.Err() != nil {
			return
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			// Classify the failure for the log
			switch {
			case c.ctx.Err() != nil:
				logger.Debug().Err(err).Msg("read interrupted by shutdown")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				logger.Info().Err(err).Msg("websocket closed normally")
			case websocket.IsUnexpectedCloseError(err):
				logger.Warn().Err(err).Msg("unexpected websocket closure")
			default:
				logger.Error().Err(err).Msg("read error")
			}

			// Report the error without blocking
			select {
			case c.errChan <- err:
			default:
				logger.Warn().Err(err).Msg("error channel full, dropping error")
			}
			return
		}

		logger.Trace().
			Int("messageType", messageType).
			Int("bytes", len(data)).
			Msg("received message")

		c.handle(data)
	}
}

// handle passes one frame to the Handler, recovering from its panics.
func (c *Client) handle(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("recover", r).Str("endpoint", c.cfg.Endpoint).Msg("panic in message handler")
		}
	}()

	err := c.cfg.Handler(c.ctx, data, c.TickChan)
	switch {
	case err == nil:
	case c.ctx.Err() != nil:
		// Shutdown interrupted a blocked send
		log.Debug().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("frame abandoned on shutdown")
	default:
		log.Warn().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("dropped feed message")
	}
}

// pingLoop sends a ping every PingPeriod.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "pingLoop").
		Logger()

	for {
		select {
		case <-ticker.C:
			connVal := c.conn.Load()
			if connVal == nil {
				continue
			}
			conn := connVal.(*websocket.Conn)

			// WriteControl is safe to call concurrently with the subscription writes.
			deadline := time.Now().Add(c.cfg.SendTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Warn().Err(err).Msg("ping error")
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) shutdownListener() {
	<-c.ctx.Done()
	c.Close()
}

// Close sends a close frame, closes the connection and waits for the
// background goroutines. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		logger := log.With().
			Str("endpoint", c.cfg.Endpoint).
			Str("component", "close").
			Logger()

		// Stop the loops first so no further ticks are sent
		c.cancel()

		// Attempt a clean close handshake, then drop the connection
		if conn, ok := c.conn.Load().(*websocket.Conn); ok {
			if err := conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			); err != nil {
				logger.Debug().Err(err).Msg("failed to send close frame")
			}

			if err := conn.Close(); err != nil {
				logger.Debug().Err(err).Msg("error closing websocket connection")
			}
		}

		// Wait for the read and ping loops with timeout
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("timeout waiting for goroutines to complete")
		}

		logger.Info().Msg("websocket client closed")
	})
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Bool("tlsInsecureSkip", c.cfg.TLSInsecureSkip).
		Logger()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.cfg.TLSInsecureSkip},
		HandshakeTimeout: defaultHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.Endpoint, make(http.Header))
	if err != nil {
		event := logger.Error().Err(err)
		if resp != nil {
			event = event.Int("statusCode", resp.StatusCode)
		}
		event.Msg("connection failed")
		return nil, err
	}

	logger.Info().Msg("websocket connection established")
	return conn, nil
}

// DisconnectChan returns a channel that is closed when the read loop exits.
func (c *Client) DisconnectChan() <-chan struct{} {
	return c.disconnect
}

// ErrChan returns a channel that emits the error that ended the read loop.
func (c *Client) ErrChan() <-chan error {
	return c.errChan
}
