package logpanel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/thraizz/battlescene/internal/prefs"
)

func TestFollowTransitions(t *testing.T) {
	f := NewFollow(10)
	assert.Equal(t, Following, f.State())

	var states []FollowState
	for _, offset := range []float64{0, 5, 50, 8} {
		states = append(states, f.Report(offset, 100))
	}
	assert.Equal(t, []FollowState{Following, Following, Detached, Following}, states)
	assert.True(t, f.ShouldAutoScroll())

	f = NewFollow(10)
	states = states[:0]
	for _, position := range []float64{100, 95, 50, 92} {
		states = append(states, f.ReportFromTop(position, 100))
	}
	assert.Equal(t, []FollowState{Following, Following, Detached, Following}, states)
}

func TestFollowReattachesWithinThreshold(t *testing.T) {
	f := NewFollow(0)
	assert.Equal(t, Detached, f.Report(100, 100))
	assert.False(t, f.ShouldAutoScroll())
	assert.Equal(t, Following, f.Report(10, 100))
	assert.Equal(t, Following, f.Report(-3, 100))
	assert.Equal(t, Detached, f.Report(500, 100))
	assert.Equal(t, "DETACHED", Detached.String())
}

func TestPanelMutators(t *testing.T) {
	p := NewPanel(prefs.Default())
	assert.True(t, p.Expanded())

	assert.False(t, p.Toggle().Expanded)
	assert.False(t, p.Expanded())

	moved, changed := p.Move(10, 20)
	assert.True(t, changed)
	assert.Equal(t, 10.0, moved.X)
	_, changed = p.Move(10, 20)
	assert.False(t, changed)

	resized, changed := p.Resize(50, 50)
	assert.True(t, changed)
	assert.Equal(t, MinWidth, resized.Width)
	assert.Equal(t, MinHeight, resized.Height)
	assert.Equal(t, 10.0, resized.X, "resize keeps position")
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (prefs.Preferences, error) {
	return prefs.Preferences{}, errors.New("boom")
}

func (failingStore) Save(context.Context, string, prefs.Preferences) error {
	return errors.New("boom")
}

func (failingStore) Close() {}

func TestRestoreAndPersist(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := prefs.NewMemoryStore()

	p := Restore(context.Background(), store, "local", logger)
	assert.Equal(t, prefs.Default(), p.Preferences())

	saved := prefs.Preferences{X: 1, Y: 2, Width: 300, Height: 300}
	Persister(store, "local", time.Second, logger)(saved)

	p = Restore(context.Background(), store, "local", logger)
	assert.Equal(t, saved, p.Preferences())

	broken := Restore(context.Background(), failingStore{}, "local", logger)
	assert.Equal(t, prefs.Default(), broken.Preferences())
	require.NotPanics(t, func() {
		Persister(failingStore{}, "local", time.Second, logger)(saved)
	})
}
