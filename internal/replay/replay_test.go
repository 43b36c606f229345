package replay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fiveFrames() *Recording {
	rec := NewRecording("battle-1", time.Unix(0, 0))
	for i := 0; i < 5; i++ {
		rec.Append(time.Duration(i)*time.Second, []byte{byte('a' + i)})
	}
	return rec
}

func TestRecordingNavigation(t *testing.T) {
	rec := fiveFrames()
	require.Equal(t, 5, rec.Len())

	f, ok := rec.Next()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), f.Data)
	f, _ = rec.Next()
	assert.Equal(t, []byte("b"), f.Data)

	// cursor is 2; Previous returns index 1
	f, ok = rec.Previous()
	require.True(t, ok)
	assert.Equal(t, []byte("b"), f.Data)
	f, _ = rec.Previous()
	assert.Equal(t, []byte("a"), f.Data)
	_, ok = rec.Previous()
	assert.False(t, ok)

	f, ok = rec.Skip(3)
	require.True(t, ok)
	assert.Equal(t, []byte("d"), f.Data)

	f, _ = rec.Skip(100)
	assert.Equal(t, []byte("e"), f.Data)
	f, _ = rec.Skip(-100)
	assert.Equal(t, []byte("a"), f.Data)

	rec.Rewind()
	for i := 0; i < 5; i++ {
		_, ok = rec.Next()
		require.True(t, ok)
	}
	_, ok = rec.Next()
	assert.False(t, ok)
}

func TestRecordingEmpty(t *testing.T) {
	rec := NewRecording("empty", time.Now())
	_, ok := rec.Next()
	assert.False(t, ok)
	_, ok = rec.Skip(1)
	assert.False(t, ok)
	_, ok = rec.At(0)
	assert.False(t, ok)
}

func TestAppendCopiesData(t *testing.T) {
	rec := NewRecording("b", time.Now())
	buf := []byte("first")
	rec.Append(0, buf)
	copy(buf, "XXXXX")

	f, ok := rec.At(0)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), f.Data)
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	rec := fiveFrames()

	path, err := rec.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "battle-1.replay"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "battle-1", loaded.BattleID)
	assert.True(t, rec.Started.Equal(loaded.Started))
	require.Equal(t, 5, loaded.Len())
	for i := 0; i < 5; i++ {
		want, _ := rec.At(i)
		got, _ := loaded.At(i)
		assert.Equal(t, want, got)
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.replay"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "garbage.replay")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestPlayStopsOnError(t *testing.T) {
	rec := fiveFrames()
	var seen []string
	n, err := rec.Play(func(f Frame) error {
		if string(f.Data) == "c" {
			return errors.New("bad frame")
		}
		seen = append(seen, string(f.Data))
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, seen)

	// the cursor sits after the failed frame
	n, err = rec.Play(func(Frame) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecorder(t *testing.T) {
	dir := t.TempDir()
	rr := NewRecorder(zaptest.NewLogger(t), dir)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	rr.now = func() time.Time { return now }

	rr.Record([]byte("ignored"))
	assert.False(t, rr.Recording())

	rr.Start("battle-7")
	assert.True(t, rr.Recording())
	rr.Record([]byte(`{"cycle":1}`))
	now = base.Add(1500 * time.Millisecond)
	rr.Record([]byte(`{"cycle":2}`))

	path, err := rr.Stop()
	require.NoError(t, err)
	assert.False(t, rr.Recording())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	f, _ := loaded.At(1)
	assert.Equal(t, 1500*time.Millisecond, f.Offset)
	assert.Equal(t, []byte(`{"cycle":2}`), f.Data)
}

func TestRecorderStopWithoutFrames(t *testing.T) {
	rr := NewRecorder(zaptest.NewLogger(t), t.TempDir())
	path, err := rr.Stop()
	require.NoError(t, err)
	assert.Empty(t, path)

	rr.Start("quiet")
	path, err = rr.Stop()
	require.NoError(t, err)
	assert.Empty(t, path)
}
