// Package replay records the raw snapshot frames a scene receives so a
// battle can be played back through a fresh composer.
package replay

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const formatVersion = 1

// Frame is one inbound payload and its arrival offset from the start of
// the recording.
type Frame struct {
	Offset time.Duration
	Data   []byte
}

// Recording is an ordered list of frames with a playback cursor.
type Recording struct {
	BattleID string
	Started  time.Time
	Frames   []Frame
	cursor   int
	mu       sync.RWMutex
}

func NewRecording(battleID string, started time.Time) *Recording {
	return &Recording{
		BattleID: battleID,
		Started:  started,
		Frames:   make([]Frame, 0),
	}
}

// Append copies data, so callers may reuse their read buffer.
func (r *Recording) Append(offset time.Duration, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	r.Frames = append(r.Frames, Frame{Offset: offset, Data: buf})
}

// Rewind resets the cursor to the first frame.
func (r *Recording) Rewind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
}

// Next returns the frame under the cursor and advances it.
func (r *Recording) Next() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor < len(r.Frames) {
		f := r.Frames[r.cursor]
		r.cursor++
		return f, true
	}
	return Frame{}, false
}

// Previous steps the cursor back and returns that frame.
func (r *Recording) Previous() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor > 0 {
		r.cursor--
		return r.Frames[r.cursor], true
	}
	return Frame{}, false
}

// Skip moves the cursor by count, clamped to the recorded range.
func (r *Recording) Skip(count int) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Frames) == 0 {
		return Frame{}, false
	}
	idx := r.cursor + count
	if idx >= len(r.Frames) {
		idx = len(r.Frames) - 1
	}
	if idx < 0 {
		idx = 0
	}
	r.cursor = idx
	return r.Frames[idx], true
}

// Play feeds every frame from the cursor onward to apply, stopping at the
// first error. It returns how many frames were applied.
func (r *Recording) Play(apply func(Frame) error) (int, error) {
	n := 0
	for {
		f, ok := r.Next()
		if !ok {
			return n, nil
		}
		if err := apply(f); err != nil {
			return n, fmt.Errorf("frame %d: %w", n, err)
		}
		n++
	}
}

func (r *Recording) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Frames)
}

// At returns the frame at index.
func (r *Recording) At(index int) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index >= 0 && index < len(r.Frames) {
		return r.Frames[index], true
	}
	return Frame{}, false
}

type header struct {
	BattleID   string
	Started    time.Time
	Saved      time.Time
	Version    int
	FrameCount int
}

// FileName is the on-disk name of a recording for battleID.
func FileName(battleID string) string {
	return battleID + ".replay"
}

// Save writes the recording gzipped under directory and returns the path.
func (r *Recording) Save(directory string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(directory, FileName(r.BattleID))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	enc := gob.NewEncoder(zw)

	h := header{
		BattleID:   r.BattleID,
		Started:    r.Started,
		Saved:      time.Now(),
		Version:    formatVersion,
		FrameCount: len(r.Frames),
	}
	if err := enc.Encode(&h); err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}
	for i := range r.Frames {
		if err := enc.Encode(&r.Frames[i]); err != nil {
			return "", fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to flush replay: %w", err)
	}
	return path, nil
}

// Load reads a recording written by Save.
func Load(path string) (*Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", h.Version)
	}

	rec := NewRecording(h.BattleID, h.Started)
	rec.Frames = make([]Frame, 0, h.FrameCount)
	for i := 0; i < h.FrameCount; i++ {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}
		rec.Frames = append(rec.Frames, f)
	}
	return rec, nil
}

// Recorder captures frames for the current battle when enabled.
type Recorder struct {
	logger  *zap.Logger
	dir     string
	now     func() time.Time
	mu      sync.Mutex
	current *Recording
}

func NewRecorder(logger *zap.Logger, dir string) *Recorder {
	return &Recorder{logger: logger, dir: dir, now: time.Now}
}

// Start begins a fresh recording, discarding any unsaved one.
func (rr *Recorder) Start(battleID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.current != nil && rr.current.Len() > 0 {
		rr.logger.Warn("discarding unsaved recording",
			zap.String("battle_id", rr.current.BattleID),
			zap.Int("frames", rr.current.Len()),
		)
	}
	rr.current = NewRecording(battleID, rr.now())
	rr.logger.Info("started recording", zap.String("battle_id", battleID))
}

// Record appends data if a recording is active.
func (rr *Recorder) Record(data []byte) {
	rr.mu.Lock()
	rec := rr.current
	rr.mu.Unlock()

	if rec == nil {
		return
	}
	rec.Append(rr.now().Sub(rec.Started), data)
	rr.logger.Debug("recorded frame",
		zap.String("battle_id", rec.BattleID),
		zap.Int("frames", rec.Len()),
	)
}

func (rr *Recorder) Recording() bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.current != nil
}

// Stop saves the active recording and clears it. It returns an empty
// path when nothing was recorded.
func (rr *Recorder) Stop() (string, error) {
	rr.mu.Lock()
	rec := rr.current
	rr.current = nil
	rr.mu.Unlock()

	if rec == nil || rec.Len() == 0 {
		return "", nil
	}
	path, err := rec.Save(rr.dir)
	if err != nil {
		return "", fmt.Errorf("failed to save recording: %w", err)
	}
	rr.logger.Info("saved recording",
		zap.String("battle_id", rec.BattleID),
		zap.Int("frames", rec.Len()),
		zap.String("path", path),
	)
	return path, nil
}
