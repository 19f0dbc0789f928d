package bar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/barkeep/internal/config"
	"github.com/asheshgoplani/barkeep/internal/protocol"
)

// syncBuffer is a goroutine-safe output sink for bar tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// barHarness runs a bar over a real config file and captured output.
type barHarness struct {
	t       *testing.T
	bar     *Bar
	out     *syncBuffer
	cfgPath string
	done    chan error
	stopped bool
}

func startBar(t *testing.T, cfgText string) *barHarness {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfgText), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	out := &syncBuffer{}
	b := New(cfg, out)
	require.NoError(t, b.WriteHeader())

	done := make(chan error, 1)
	go func() {
		done <- b.Run(context.Background())
	}()

	h := &barHarness{t: t, bar: b, out: out, cfgPath: cfg.Path, done: done}
	t.Cleanup(func() { h.stop() })
	return h
}

// stop shuts the bar down and waits for Run to return.
func (h *barHarness) stop() error {
	h.t.Helper()
	if h.stopped {
		return nil
	}
	h.stopped = true

	h.bar.Send(context.Background(), MsgShutdown)
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("bar did not shut down within 5s")
		return nil
	}
}

// frames parses every body frame emitted so far, in order.
func (h *barHarness) frames() [][]protocol.Body {
	full := h.out.String()
	idx := strings.Index(full, "\n[")
	if idx < 0 {
		return nil
	}
	var frames [][]protocol.Body
	for _, line := range strings.Split(full[idx+2:], "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}
		var bodies []protocol.Body
		if err := json.Unmarshal([]byte(line), &bodies); err != nil {
			h.t.Fatalf("bad frame %q: %v", line, err)
		}
		frames = append(frames, bodies)
	}
	return frames
}

func (h *barHarness) rewriteConfig(cfgText string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(h.cfgPath, []byte(cfgText), 0644))
}

func fullTexts(frame []protocol.Body) []string {
	texts := make([]string, len(frame))
	for i, b := range frame {
		if b.FullText != nil {
			texts[i] = *b.FullText
		}
	}
	return texts
}

func TestBarEmitsHeaderThenFrames(t *testing.T) {
	h := startBar(t, `
[[block]]
full_text = "hello"
`)

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		for _, frame := range h.frames() {
			if len(frame) == 1 && frame[0].FullText != nil && *frame[0].FullText == "hello" {
				return true
			}
		}
		return false
	}))

	header, _, ok := strings.Cut(h.out.String(), "\n")
	require.True(t, ok)
	assert.Contains(t, header, `"version":1`)
}

func TestBarSuppressesIdenticalFrames(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "same.sh", `echo same`)

	h := startBar(t, `
command_dir = "`+dir+`"

[[block]]
command = "`+script+`"
interval = 0.05
`)

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		frames := h.frames()
		if len(frames) == 0 {
			return false
		}
		last := frames[len(frames)-1]
		return len(last) == 1 && last[0].FullText != nil && *last[0].FullText == "same"
	}))

	// The interval keeps regenerating identical bodies; every one of
	// those refreshes must be swallowed by the fingerprint check.
	count := len(h.frames())
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, count, len(h.frames()), "identical frames were re-emitted")
}

func TestBarPreservesConfiguredOrder(t *testing.T) {
	dir := t.TempDir()
	failing := writeScript(t, dir, "a.sh", `exit 1`)
	ok := writeScript(t, dir, "b.sh", `echo ok`)

	h := startBar(t, `
[[block]]
command = "`+failing+`"
full_text = "A-fallback"

[[block]]
command = "`+ok+`"
`)

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		for _, frame := range h.frames() {
			texts := fullTexts(frame)
			if len(texts) == 2 && texts[0] == "A-fallback" && texts[1] == "ok" {
				return true
			}
		}
		return false
	}), "never saw [A-fallback, ok] in configured order; frames: %v", h.frames())
}

func TestBarReloadReplacesBlocks(t *testing.T) {
	dir := t.TempDir()
	slow := writeScript(t, dir, "slow.sh", "sleep 10\necho C-ran")

	h := startBar(t, `
[[block]]
full_text = "before"

[[block]]
command = "`+slow+`"
`)

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		return len(h.frames()) > 0
	}))

	h.rewriteConfig(`
[[block]]
full_text = "after"
`)

	start := time.Now()
	require.True(t, h.bar.Send(context.Background(), MsgReload))

	require.True(t, waitFor(t, 4*time.Second, func() bool {
		frames := h.frames()
		if len(frames) == 0 {
			return false
		}
		last := frames[len(frames)-1]
		return len(last) == 1 && last[0].FullText != nil && *last[0].FullText == "after"
	}), "reloaded config never took effect")

	// The slow block was mid-command; reload must kill it rather than
	// sit out its sleep.
	assert.Less(t, time.Since(start), 3*time.Second)

	for _, frame := range h.frames() {
		for _, body := range frame {
			if body.FullText != nil {
				assert.NotEqual(t, "C-ran", *body.FullText,
					"killed command's output leaked into a frame")
			}
		}
	}
}

func TestBarReloadFailureKeepsCurrentSet(t *testing.T) {
	h := startBar(t, `
[[block]]
full_text = "stable"
`)

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		return len(h.frames()) > 0
	}))

	h.rewriteConfig(`[[block`)
	h.bar.Send(context.Background(), MsgReload)

	// The broken config is rejected; the old blocks keep serving.
	time.Sleep(300 * time.Millisecond)
	frames := h.frames()
	last := frames[len(frames)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "stable", *last[0].FullText)

	require.NoError(t, h.stop())
}

func TestBarShutdownDuringIntervalSleep(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tick.sh", `echo tick`)

	h := startBar(t, `
[[block]]
command = "`+script+`"
interval = 10.0
`)

	require.True(t, waitFor(t, 3*time.Second, func() bool {
		return len(h.frames()) > 0
	}))

	// The interval trigger is mid-sleep; shutdown must not wait for
	// its tick.
	start := time.Now()
	require.NoError(t, h.stop())
	assert.Less(t, time.Since(start), 3*time.Second)

	count := len(h.frames())
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, count, len(h.frames()), "frames emitted after shutdown")
}

func TestBarRefusesSendAfterShutdown(t *testing.T) {
	h := startBar(t, `
[[block]]
full_text = "x"
`)
	require.NoError(t, h.stop())

	assert.True(t, h.bar.Stopped())
	assert.False(t, h.bar.Send(context.Background(), MsgRefresh))
}

// headerOnlyWriter accepts the first write (the header) and fails all
// later ones.
type headerOnlyWriter struct {
	writes int
}

func (w *headerOnlyWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("sink broken")
	}
	return len(p), nil
}

func TestBarFrameWriteFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[block]]
full_text = "x"
`), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	b := New(cfg, &headerOnlyWriter{})
	require.NoError(t, b.WriteHeader())

	done := make(chan error, 1)
	go func() {
		done <- b.Run(context.Background())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, b.Stopped())
	case <-time.After(5 * time.Second):
		t.Fatal("bar did not fail on a broken sink")
	}
}

func TestBarHeaderWriteFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[block]]
full_text = "x"
`), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	w := &headerOnlyWriter{writes: 1} // already exhausted
	b := New(cfg, w)
	assert.Error(t, b.WriteHeader())
}

func TestBarContextCancelShutsDown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[block]]
full_text = "x"
`), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	b := New(cfg, &syncBuffer{})
	require.NoError(t, b.WriteHeader())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.True(t, b.Stopped())
	case <-time.After(5 * time.Second):
		t.Fatal("bar did not stop on context cancel")
	}
}

func TestQueueDepth(t *testing.T) {
	assert.Equal(t, 16, queueDepth(0))
	assert.Equal(t, 16, queueDepth(1))
	assert.Equal(t, 48, queueDepth(10))
}
