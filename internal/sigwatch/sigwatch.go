// Package sigwatch adapts OS signals into the two control events the
// bar understands: the continue signal becomes a reload, the stop
// signal becomes a shutdown.
package sigwatch

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/asheshgoplani/barkeep/internal/bar"
	"github.com/asheshgoplani/barkeep/internal/logging"
)

var sigLog = logging.ForComponent(logging.CompSignal)

// Watcher forwards configured signals to a bar until stopped.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start registers handlers for contSig and stopSig and begins
// forwarding them to b. An unusable signal number is logged and simply
// never fires. Stop the returned watcher to unregister and wait for
// the forwarding loop to finish.
func Start(b *bar.Bar, contSig, stopSig int) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx, b, contSig, stopSig)
	return w
}

// Stop unregisters the signal handlers and waits for the forwarding
// loop to fully stop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context, b *bar.Bar, contSig, stopSig int) {
	defer close(w.done)

	contCh := listen(contSig, "cont")
	stopCh := listen(stopSig, "stop")
	defer signal.Stop(contCh)
	defer signal.Stop(stopCh)

	for {
		select {
		case <-ctx.Done():
			return

		case <-contCh:
			// The bar refuses the send once terminal shutdown has
			// begun; a refused reload is dropped, not retried.
			if !b.Send(ctx, bar.MsgReload) {
				sigLog.Debug("cont_dropped_bar_stopped")
				return
			}

		case <-stopCh:
			b.Send(ctx, bar.MsgShutdown)
			return
		}
	}
}

// listen registers num and returns its delivery channel. For unusable
// numbers it returns an unregistered channel that never fires, so the
// caller's select simply ignores that leg.
func listen(num int, role string) chan os.Signal {
	ch := make(chan os.Signal, 1)
	if !catchable(num) {
		sigLog.Warn("signal_not_catchable",
			slog.String("role", role),
			slog.Int("signal", num),
		)
		return ch
	}
	signal.Notify(ch, syscall.Signal(num))
	sigLog.Debug("signal_registered",
		slog.String("role", role),
		slog.Int("signal", num),
	)
	return ch
}

func catchable(num int) bool {
	if num <= 0 || num >= 64 {
		return false
	}
	sig := syscall.Signal(num)
	return sig != syscall.SIGKILL && sig != syscall.SIGSTOP
}
