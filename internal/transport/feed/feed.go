// Package feed connects to the battle server, applies every snapshot frame
// it delivers and forwards user selections back upstream.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thraizz/battlescene/internal/compose"
)

const (
	MessageSelection = "selection"

	dialTimeout = 10 * time.Second
	writeWait   = 10 * time.Second
)

var ErrNotConnected = errors.New("feed not connected")

// Sink consumes raw snapshot frames.
type Sink interface {
	ApplyFrame(data []byte) (compose.Plan, error)
}

// Recorder captures raw frames as they arrive.
type Recorder interface {
	Record(data []byte)
}

type upstreamMessage struct {
	Type string             `json:"type"`
	Data *compose.Selection `json:"data"`
}

type Client struct {
	logger   *zap.Logger
	url      string
	sink     Sink
	recorder Recorder
	dialer   *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(logger *zap.Logger, url string, sink Sink) *Client {
	return &Client{
		logger: logger,
		url:    url,
		sink:   sink,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
}

// SetRecorder makes the client hand every frame to r before applying it.
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// Attach forwards selection notifications on bus upstream.
func (c *Client) Attach(bus *compose.Bus) int {
	return bus.SubscribeTyped(compose.NotifySelectionMade, func(n compose.Notification) {
		if n.Selection == nil {
			return
		}
		if err := c.Send(*n.Selection); err != nil {
			c.logger.Warn("failed to forward selection",
				zap.String("kind", n.Selection.Kind),
				zap.String("entity_id", n.Selection.EntityID),
				zap.Error(err),
			)
		}
	})
}

// Send writes a selection to the battle server unchanged.
func (c *Client) Send(sel compose.Selection) error {
	data, err := json.Marshal(upstreamMessage{Type: MessageSelection, Data: &sel})
	if err != nil {
		return fmt.Errorf("failed to encode selection: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write selection: %w", err)
	}
	return nil
}

// Run dials the battle server and applies frames until the connection
// drops or ctx is done. It does not reconnect.
func (c *Client) Run(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial battle server %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("connected to battle server", zap.String("url", c.url))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	frames := 0
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("battle server closed the feed", zap.Int("frames", frames))
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		frames++
		if c.recorder != nil {
			c.recorder.Record(data)
		}
		// undecodable frames are logged by the sink and skipped
		if _, err := c.sink.ApplyFrame(data); err != nil {
			c.logger.Debug("frame not applied", zap.Int("frame", frames), zap.Error(err))
			if errors.Is(err, compose.ErrClosed) {
				return err
			}
		}
	}
}
