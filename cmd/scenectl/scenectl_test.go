package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thraizz/battlescene/internal/replay"
)

const (
	firstFrame = `{"battle_id":"b-9","local_player_id":"p1","turn":1,
		"entities":[
			{"id":"a1","owner_id":"p1","kind":"pokemon","location":{"zone":"active"}},
			{"id":"x1","owner_id":"p1","kind":"pokemon","location":{"zone":"nowhere"}}
		],
		"events":[{"type":"turn_start","player_id":"p1","turn":1,"text":"Turn 1"}]}`
	secondFrame = `{"battle_id":"b-9","local_player_id":"p1","turn":1,
		"entities":[
			{"id":"a1","owner_id":"p1","kind":"pokemon","location":{"zone":"bench","index":0}}
		],
		"events":[
			{"type":"turn_start","player_id":"p1","turn":1,"text":"Turn 1"},
			{"type":"damage","player_id":"p2","turn":1,"text":"Hit for 30","payload":{"target_id":"a1","amount":30}}
		]}`
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(firstFrame), 0o600))

	out, err := execute(t, "resolve", path)
	require.NoError(t, err)
	assert.Contains(t, out, "a1")
	assert.Contains(t, out, "fallback:")
	assert.Contains(t, out, "2 entities, 1 fallback")
}

func TestResolveRejectsBadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"entities": [`), 0o600))

	_, err := execute(t, "resolve", path)
	assert.Error(t, err)
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	rec := replay.NewRecording("b-9", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rec.Append(0, []byte(firstFrame))
	rec.Append(100*time.Millisecond, []byte(`{"entities": [`))
	rec.Append(2*time.Second, []byte(secondFrame))
	path, err := rec.Save(dir)
	require.NoError(t, err)

	out, err := execute(t, "replay", path)
	require.NoError(t, err)
	assert.Contains(t, out, "recording b-9: 3 frames")
	assert.Contains(t, out, "cycle=1")
	assert.Contains(t, out, "cycle=2")
	assert.Contains(t, out, "skipped:")
	assert.Contains(t, out, "2 frames applied, 1 skipped")
}

func TestReplayMissingFile(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "absent.replay"))
	assert.Error(t, err)
}
