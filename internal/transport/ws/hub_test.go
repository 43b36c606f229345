package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/thraizz/battlescene/internal/compose"
	"github.com/thraizz/battlescene/internal/logpanel"
	"github.com/thraizz/battlescene/internal/prefs"
)

type fakeScene struct {
	mu      sync.Mutex
	plan    compose.Plan
	intents []compose.Intent
}

func (f *fakeScene) Intent(in compose.Intent) (compose.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.Kind == compose.IntentClick && in.EntityID == "ghost" {
		return compose.Session{}, fmt.Errorf("%w: %q", compose.ErrUnknownEntity, in.EntityID)
	}
	f.intents = append(f.intents, in)
	return compose.Session{
		Follow:      logpanel.Detached,
		Preferences: prefs.Default(),
		Selected:    in.EntityID,
		Cycle:       f.plan.Cycle,
	}, nil
}

func (f *fakeScene) LastPlan() compose.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plan
}

func (f *fakeScene) received() []compose.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compose.Intent(nil), f.intents...)
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T, scene Scene) (*Hub, string) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t), scene, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestLateJoinerReceivesLastPlan(t *testing.T) {
	scene := &fakeScene{plan: compose.Plan{Cycle: 4, BattleID: "b1", Follow: "FOLLOWING"}}
	_, url := startHub(t, scene)

	conn := dial(t, url)
	env := read(t, conn)
	require.Equal(t, MessageRenderPlan, env.Type)

	var plan compose.Plan
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	assert.Equal(t, uint64(4), plan.Cycle)
	assert.Equal(t, "b1", plan.BattleID)
}

func TestJoinerDuringBroadcastsSeesIncreasingCycles(t *testing.T) {
	const plans = 200
	scene := &fakeScene{}
	hub, url := startHub(t, scene)

	started := make(chan struct{})
	go func() {
		for i := 1; i <= plans; i++ {
			plan := compose.Plan{Cycle: uint64(i)}
			scene.mu.Lock()
			scene.plan = plan
			scene.mu.Unlock()
			hub.Broadcast(Message{Type: MessageRenderPlan, Data: &plan})
			if i == plans/4 {
				close(started)
			}
		}
	}()

	<-started
	conn := dial(t, url)
	var last uint64
	for last < plans {
		env := read(t, conn)
		require.Equal(t, MessageRenderPlan, env.Type)
		var plan compose.Plan
		require.NoError(t, json.Unmarshal(env.Data, &plan))
		require.Greater(t, plan.Cycle, last, "cycle went backwards")
		last = plan.Cycle
	}
}

func TestJoinerSeededFromLatestBroadcast(t *testing.T) {
	scene := &fakeScene{plan: compose.Plan{Cycle: 7}}
	hub, url := startHub(t, scene)
	first := dial(t, url)
	read(t, first)

	// a partial plan never becomes the seed
	hub.Broadcast(Message{Type: MessageRenderPlan, Data: &compose.Plan{Cycle: 8}})
	hub.Broadcast(Message{Type: MessageRenderPlan, Data: &compose.Plan{Cycle: 8, Partial: true}})
	read(t, first)
	read(t, first)

	conn := dial(t, url)
	env := read(t, conn)
	var plan compose.Plan
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	assert.Equal(t, uint64(8), plan.Cycle)
	assert.False(t, plan.Partial)
}

func TestIntentRoundTrip(t *testing.T) {
	scene := &fakeScene{}
	_, url := startHub(t, scene)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"action","kind":"attack","entity_id":"a1","move_id":"m2"}`)))

	env := read(t, conn)
	require.Equal(t, MessageSession, env.Type)
	var view SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "DETACHED", view.Follow)
	assert.Equal(t, "a1", view.Selected)

	got := scene.received()
	require.Len(t, got, 1)
	assert.Equal(t, compose.IntentAction, got[0].Kind)
	assert.Equal(t, "attack", got[0].Action)
	assert.Equal(t, "m2", got[0].MoveID)
}

func TestRejectedAndMalformedIntents(t *testing.T) {
	scene := &fakeScene{}
	_, url := startHub(t, scene)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"click","entity_id":"ghost"}`)))
	env := read(t, conn)
	assert.Equal(t, MessageError, env.Type)
	assert.Contains(t, string(env.Data), "ghost")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	env = read(t, conn)
	assert.Equal(t, MessageError, env.Type)

	assert.Empty(t, scene.received())
}

func TestAttachBroadcastsNotifications(t *testing.T) {
	scene := &fakeScene{}
	hub, url := startHub(t, scene)
	bus := compose.NewBus()
	handles := hub.Attach(bus)
	require.Len(t, handles, 2)

	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	bus.Publish(compose.Notification{Type: compose.NotifyPlanReady, Plan: &compose.Plan{Cycle: 9}})
	p := prefs.Default()
	p.Expanded = false
	bus.Publish(compose.Notification{Type: compose.NotifyPreferencesChanged, Preferences: &p})
	// selections go upstream, never to renderers
	bus.Publish(compose.Notification{Type: compose.NotifySelectionMade, Selection: &compose.Selection{Kind: "click"}})

	for _, conn := range []*websocket.Conn{a, b} {
		env := read(t, conn)
		require.Equal(t, MessageRenderPlan, env.Type)
		var plan compose.Plan
		require.NoError(t, json.Unmarshal(env.Data, &plan))
		assert.Equal(t, uint64(9), plan.Cycle)

		env = read(t, conn)
		require.Equal(t, MessagePreferences, env.Type)
		var got prefs.Preferences
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, p, got)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, &fakeScene{})
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), &fakeScene{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*sendBuffer; i++ {
			hub.Broadcast(Message{Type: MessageRenderPlan})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked after shutdown")
	}
}
