package bar

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/barkeep/internal/config"
	"github.com/asheshgoplani/barkeep/internal/logging"
	"github.com/asheshgoplani/barkeep/internal/protocol"
)

var blockLog = logging.ForComponent(logging.CompBlock)

// minInterval is the smallest usable refresh period. Configured
// intervals below it are clamped up with a warning.
const minInterval = time.Millisecond

// notifyFunc asks the bar for an output refresh. Implementations must
// return once ctx is cancelled, even if the bar never receives the
// request.
type notifyFunc func(ctx context.Context)

// Block owns one configured block: its body cell, the command that
// regenerates it, and the two triggers (interval, signal) that request
// regeneration. The bar reads the body through Snapshot; nothing else
// touches it.
type Block struct {
	id     int
	cfg    config.Block
	global protocol.Body
	cmdDir string
	notify notifyFunc

	// refresh carries regenerate requests; the value marks the
	// initial request. Sized so a simultaneous burst from both
	// triggers of every block cannot block a sender.
	refresh chan bool

	mu   sync.RWMutex
	body protocol.Body
}

// newBlock builds a block and queues its initial regenerate request.
// total is the number of blocks in the set, used to size the refresh
// queue.
func newBlock(cfg config.Block, global protocol.Body, cmdDir string, id, total int, notify notifyFunc) *Block {
	depth := 2 * total
	if depth < 2 {
		depth = 2
	}
	b := &Block{
		id:      id,
		cfg:     cfg,
		global:  global,
		cmdDir:  cmdDir,
		notify:  notify,
		refresh: make(chan bool, depth),
	}
	b.refresh <- true
	return b
}

// Snapshot returns a point-in-time copy of the block's body.
func (b *Block) Snapshot() protocol.Body {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.body
}

// Listen runs the block until ctx is cancelled: it starts both
// triggers, then serves regenerate requests one at a time. A request
// arriving mid-regenerate queues behind it; cancellation preempts.
// Listen returns only after both triggers have stopped.
func (b *Block) Listen(ctx context.Context) {
	g, tctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.runInterval(tctx)
		return nil
	})
	g.Go(func() error {
		b.runSignal(tctx)
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return
		case initial := <-b.refresh:
			b.regenerate(ctx, initial)
		}
	}
}

// request queues a regenerate without outliving ctx.
func (b *Block) request(ctx context.Context, initial bool) {
	select {
	case b.refresh <- initial:
	case <-ctx.Done():
	}
}

// regenerate recomputes the block's body. On an initial request the
// merge is first applied over empty output, so local and global config
// (and prefix/postfix) render before the command's first run. Then the
// configured command, if any, is executed with ctx; cancellation kills
// the process and discards its result.
func (b *Block) regenerate(ctx context.Context, initial bool) {
	if initial {
		b.apply(ctx, "")
	}
	if b.cfg.Command == nil {
		// Without a command the body cannot change until reconfigure.
		return
	}

	cmd := exec.CommandContext(ctx, *b.cfg.Command)
	cmd.Dir = b.cmdDir
	// Run the command in its own process group and kill the whole
	// group on cancel: killing only the direct child would leave its
	// descendants running and holding the stdout pipe open. WaitDelay
	// bounds the wait for stragglers that ignore the kill.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 3 * time.Second
	out, err := cmd.Output()
	if ctx.Err() != nil {
		// Cancelled mid-flight: the process was killed, its output
		// must not reach the body.
		return
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			blockLog.Warn("command_exit_nonzero",
				slog.Int("block", b.id),
				slog.String("command", *b.cfg.Command),
				slog.Int("code", exitErr.ExitCode()),
			)
			// Whatever stdout the command managed to produce still
			// feeds the merge.
		} else {
			blockLog.Error("command_failed",
				slog.Int("block", b.id),
				slog.String("command", *b.cfg.Command),
				slog.String("error", err.Error()),
			)
			out = nil
		}
	}
	if !utf8.Valid(out) {
		blockLog.Warn("command_output_not_utf8",
			slog.Int("block", b.id),
			slog.String("command", *b.cfg.Command),
		)
		out = nil
	}

	b.apply(ctx, string(out))
}

// apply merges output into the body cell and pings the bar. The ping
// runs in its own goroutine so a full control queue can never wedge the
// listen loop that drains this block's own requests.
func (b *Block) apply(ctx context.Context, output string) {
	next := mergeBody(splitLines(output), &b.cfg.Body, &b.global, b.cfg.Prefix, b.cfg.Postfix)

	b.mu.Lock()
	b.body = next
	b.mu.Unlock()

	go b.notify(ctx)
}

// runInterval fires a regenerate every configured interval. Bad
// intervals disable the trigger; ticks missed while a regenerate is
// in flight are dropped, not replayed.
func (b *Block) runInterval(ctx context.Context) {
	if b.cfg.Interval == nil {
		return
	}

	secs := *b.cfg.Interval
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs > math.MaxInt64/float64(time.Second) {
		blockLog.Warn("interval_invalid",
			slog.Int("block", b.id),
			slog.Float64("interval", secs),
		)
		return
	}
	if secs <= 0 {
		blockLog.Warn("interval_not_positive",
			slog.Int("block", b.id),
			slog.Float64("interval", secs),
		)
		return
	}

	period := time.Duration(secs * float64(time.Second))
	if period < minInterval {
		blockLog.Warn("interval_clamped",
			slog.Int("block", b.id),
			slog.Float64("interval", secs),
			slog.Duration("clamped_to", minInterval),
		)
		period = minInterval
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.request(ctx, false)
		}
	}
}

// runSignal fires a regenerate on every delivery of the configured OS
// signal. With no signal configured the trigger is permanently idle;
// an unusable signal number is logged and leaves it idle too.
func (b *Block) runSignal(ctx context.Context) {
	if b.cfg.Signal == nil {
		return
	}

	num := *b.cfg.Signal
	if !catchable(num) {
		blockLog.Error("signal_invalid",
			slog.Int("block", b.id),
			slog.Int("signal", num),
		)
		return
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.Signal(num))
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			b.request(ctx, false)
		}
	}
}

// catchable reports whether num names a signal a handler can be
// installed for.
func catchable(num int) bool {
	if num <= 0 || num >= 64 {
		return false
	}
	sig := syscall.Signal(num)
	return sig != syscall.SIGKILL && sig != syscall.SIGSTOP
}
