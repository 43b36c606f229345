// Package ws serves render plans to renderer clients over websockets and
// turns their messages into scene intents.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thraizz/battlescene/internal/compose"
)

const (
	MessageRenderPlan  = "render_plan"
	MessagePreferences = "preferences"
	MessageSession     = "session"
	MessageError       = "error"

	writeWait  = 10 * time.Second
	sendBuffer = 256
)

// Message is the envelope written to renderer clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// SessionView is the wire form of compose.Session.
type SessionView struct {
	Follow   string  `json:"follow"`
	Expanded bool    `json:"log_expanded"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"w"`
	Height   float64 `json:"h"`
	Selected string  `json:"selected,omitempty"`
	Cycle    uint64  `json:"cycle"`
}

func viewOf(s compose.Session) SessionView {
	return SessionView{
		Follow:   s.Follow.String(),
		Expanded: s.Preferences.Expanded,
		X:        s.Preferences.X,
		Y:        s.Preferences.Y,
		Width:    s.Preferences.Width,
		Height:   s.Preferences.Height,
		Selected: s.Selected,
		Cycle:    s.Cycle,
	}
}

// Scene is the part of the composer the hub drives.
type Scene interface {
	Intent(compose.Intent) (compose.Session, error)
	LastPlan() compose.Plan
}

type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(*http.Request) bool
}

// outbound is one encoded broadcast. full marks a complete render plan.
type outbound struct {
	data []byte
	full bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans plans out to every connected renderer.
type Hub struct {
	logger   *zap.Logger
	scene    Scene
	upgrader websocket.Upgrader

	unregister chan *client
	broadcast  chan outbound
	done       chan struct{}

	// mu guards clients and latest. A joiner is seeded and added under it,
	// so it sees latest followed by exactly the broadcasts after it.
	mu      sync.RWMutex
	clients map[*client]bool
	latest  []byte

	// planned is set once a full plan was queued for broadcast.
	planned atomic.Bool
}

func NewHub(logger *zap.Logger, scene Scene, cfg Config) *Hub {
	check := cfg.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Hub{
		logger: logger,
		scene:  scene,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     check,
		},
		unregister: make(chan *client),
		broadcast:  make(chan outbound, sendBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
}

// Attach subscribes the hub to plan and preference notifications on bus.
// It returns the subscription handles.
func (h *Hub) Attach(bus *compose.Bus) []int {
	return []int{
		bus.SubscribeTyped(compose.NotifyPlanReady, func(n compose.Notification) {
			if n.Plan != nil {
				h.Broadcast(Message{Type: MessageRenderPlan, Data: n.Plan})
			}
		}),
		bus.SubscribeTyped(compose.NotifyPreferencesChanged, func(n compose.Notification) {
			if n.Preferences != nil {
				h.Broadcast(Message{Type: MessagePreferences, Data: n.Preferences})
			}
		}),
	}
}

// Run owns the client set until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Info("renderer disconnected", zap.String("client_id", c.id))
			}
			h.mu.Unlock()

		case out := <-h.broadcast:
			h.mu.Lock()
			if out.full {
				h.latest = out.data
			}
			for c := range h.clients {
				select {
				case c.send <- out.data:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("dropping slow renderer", zap.String("client_id", c.id))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It is a no-op once Run returned.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	full := false
	if plan, ok := msg.Data.(*compose.Plan); ok && plan != nil && !plan.Partial {
		full = true
		h.planned.Store(true)
	}
	select {
	case h.broadcast <- outbound{data: data, full: full}:
	case <-h.done:
	}
}

// ServeHTTP upgrades the request and starts the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	if !h.join(c) {
		conn.Close()
		return
	}
	h.logger.Info("renderer connected", zap.String("client_id", c.id))

	go h.writePump(c)
	go h.readPump(c)
}

// join seeds c with the latest full plan and adds it to the client set in
// one critical section. It reports false once Run returned.
func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}

	seed := h.latest
	if seed == nil && !h.planned.Load() {
		// nothing broadcast yet; start from the scene itself
		if plan := h.scene.LastPlan(); plan.Cycle > 0 {
			if data, err := json.Marshal(Message{Type: MessageRenderPlan, Data: plan}); err == nil {
				seed = data
			}
		}
	}
	if seed != nil {
		c.send <- seed
	}
	h.clients[c] = true
	return true
}

func (h *Hub) sendTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("renderer send buffer full", zap.String("client_id", c.id))
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("renderer read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var in compose.Intent
		if err := json.Unmarshal(data, &in); err != nil {
			h.logger.Warn("malformed intent", zap.String("client_id", c.id), zap.Error(err))
			h.sendTo(c, Message{Type: MessageError, Data: "malformed intent"})
			continue
		}

		s, err := h.scene.Intent(in)
		if err != nil {
			h.logger.Debug("intent rejected",
				zap.String("client_id", c.id),
				zap.String("intent", string(in.Kind)),
				zap.Error(err),
			)
			h.sendTo(c, Message{Type: MessageError, Data: err.Error()})
			if errors.Is(err, compose.ErrClosed) {
				return
			}
			continue
		}
		h.sendTo(c, Message{Type: MessageSession, Data: viewOf(s)})
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("renderer write failed", zap.String("client_id", c.id), zap.Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
