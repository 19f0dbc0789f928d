// Package bar contains the runtime core of barkeep: the Bar supervisor
// that owns the output stream and the control queue, the BlockSet of
// active blocks, and the per-block triggers and scope merge.
//
// Control flows outward (Bar → contexts → blocks → triggers), data
// flows inward (triggers → command output → block body → frame).
package bar

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/asheshgoplani/barkeep/internal/config"
	"github.com/asheshgoplani/barkeep/internal/logging"
)

var barLog = logging.ForComponent(logging.CompBar)

// Stopper is anything the bar must stop and await during shutdown,
// after every block has stopped. Stop must block until the component
// has fully wound down.
type Stopper interface {
	Stop()
}

// Bar is the supervisor: it owns the block set and the output sink and
// serializes all control events through one queue.
type Bar struct {
	out     io.Writer
	cfg     *config.Config
	ctrl    chan ControlMsg
	blocks  BlockSet
	stopped atomic.Bool

	// stoppers are torn down, in order, after all blocks have
	// stopped. Registered before Run.
	stoppers []Stopper

	lastSum [sha256.Size]byte
	haveSum bool
}

// New builds an inactive bar over cfg, writing frames to out.
func New(cfg *config.Config, out io.Writer) *Bar {
	return &Bar{
		out:  out,
		cfg:  cfg,
		ctrl: make(chan ControlMsg, queueDepth(len(cfg.Bar.Blocks))),
	}
}

// queueDepth sizes the control queue. Every block can have a refresh in
// flight from each of its triggers concurrently; the queue must exceed
// that so no producer stalls while the run loop is busy.
func queueDepth(blocks int) int {
	depth := 4*blocks + 8
	if depth < 16 {
		depth = 16
	}
	return depth
}

// AddStopper registers a component to be stopped during shutdown,
// after all blocks. Must be called before Run.
func (b *Bar) AddStopper(s Stopper) {
	b.stoppers = append(b.stoppers, s)
}

// Send enqueues a control event from outside the bar. It reports false
// without enqueueing when the bar has already begun terminal shutdown
// or ctx is cancelled, so external adapters never push into a bar that
// will not drain the queue.
func (b *Bar) Send(ctx context.Context, msg ControlMsg) bool {
	if b.stopped.Load() {
		return false
	}
	select {
	case b.ctrl <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stopped reports whether the bar has begun terminal shutdown.
func (b *Bar) Stopped() bool {
	return b.stopped.Load()
}

// WriteHeader emits the one-time protocol preamble and opens the
// infinite body array. A failure here is fatal: the sink is unusable.
func (b *Bar) WriteHeader() error {
	data, err := json.Marshal(b.cfg.Bar.Header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := fmt.Fprintf(b.out, "%s\n[", data); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	barLog.Debug("header_written", slog.Int("version", b.cfg.Bar.Header.Version))
	return nil
}

// Run builds the initial block set and serves control events until a
// shutdown event arrives or ctx is cancelled. Exactly one event is
// handled at a time. The returned error is non-nil only for a fatal
// output sink failure.
func (b *Bar) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.blocks.AddAll(runCtx, b.cfg.Bar.Blocks, b.cfg.Bar.Body, b.cfg.CommandDir, b.requestRefresh)

	for {
		select {
		case <-ctx.Done():
			barLog.Info("shutdown_requested", slog.String("via", "context"))
			b.shutdown()
			return nil

		case msg := <-b.ctrl:
			switch msg {
			case MsgReload:
				b.reload(runCtx)

			case MsgShutdown:
				barLog.Info("shutdown_requested", slog.String("via", "control"))
				b.shutdown()
				return nil

			case MsgRefresh:
				if err := b.writeFrame(); err != nil {
					barLog.Error("frame_write_failed", slog.String("error", err.Error()))
					b.shutdown()
					return err
				}
			}
		}
	}
}

// requestRefresh is the notify handle given to every block. Blocks
// call it from a spawned goroutine, so a momentarily full queue only
// parks that goroutine, never a block's listen loop.
func (b *Bar) requestRefresh(ctx context.Context) {
	select {
	case b.ctrl <- MsgRefresh:
	case <-ctx.Done():
	}
}

// reload re-reads the configuration from its original path and swaps
// the block set. A load failure keeps the current set untouched. The
// old set is fully stopped before the new one starts, so two
// generations of one block never overlap.
func (b *Bar) reload(runCtx context.Context) {
	next, err := config.Load(b.cfg.Path)
	if err != nil {
		barLog.Error("reload_failed",
			slog.String("path", b.cfg.Path),
			slog.String("error", err.Error()),
		)
		barLog.Info("keeping_current_config")
		return
	}

	b.blocks.RemoveAll()

	if !headersEqual(b.cfg, next) {
		// The preamble was already committed; it cannot be resent.
		barLog.Warn("header_changed_requires_restart")
	}

	b.cfg = next
	b.blocks.AddAll(runCtx, next.Bar.Blocks, next.Bar.Body, next.CommandDir, b.requestRefresh)

	barLog.Info("config_reloaded", slog.Int("blocks", b.blocks.Len()))
}

func headersEqual(a, b *config.Config) bool {
	aj, err := json.Marshal(a.Bar.Header)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b.Bar.Header)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// shutdown is the single teardown path: mark the bar stopped so
// external adapters stop sending, stop every block, then stop the
// adapters themselves. Blocks go first because their signal triggers
// may still be using the process signal plumbing the adapters share.
func (b *Bar) shutdown() {
	b.stopped.Store(true)
	b.blocks.RemoveAll()
	for _, s := range b.stoppers {
		s.Stop()
	}
	barLog.Debug("shutdown_complete")
}

// writeFrame emits one ordered snapshot of every block's body, unless
// it would be byte-identical to the previous frame.
func (b *Bar) writeFrame() error {
	data, err := json.Marshal(b.blocks.Snapshots())
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	sum := sha256.Sum256(data)
	if b.haveSum && sum == b.lastSum {
		barLog.Debug("frame_unchanged")
		return nil
	}

	if _, err := fmt.Fprintf(b.out, "%s,\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	b.lastSum = sum
	b.haveSum = true

	barLog.Debug("frame_written", slog.Int("blocks", b.blocks.Len()))
	return nil
}
