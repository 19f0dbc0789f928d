// Package watch reloads the bar when its configuration file changes on
// disk. It watches the file's directory (editors typically replace the
// file by rename), coalesces bursts of filesystem events, and rate
// limits how often a reload may fire.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/barkeep/internal/bar"
	"github.com/asheshgoplani/barkeep/internal/logging"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// debounceDelay coalesces the event bursts a single save produces.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads a bar on config file changes until stopped.
type Watcher struct {
	fsw      *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start watches path's directory and forwards coalesced changes to b
// as reload events, at most one per second.
func Start(b *bar.Bar, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsw:    fsw,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx, b, path)

	watchLog.Info("watching_config", slog.String("path", path))
	return w, nil
}

// Stop ends the watch and waits for the event loop to finish. Safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		w.fsw.Close()
	})
	<-w.done
}

func (w *Watcher) run(ctx context.Context, b *bar.Bar, path string) {
	defer close(w.done)

	base := filepath.Base(path)
	limiter := rate.NewLimiter(rate.Limit(1), 1)

	var mu sync.Mutex
	var debounce *time.Timer
	defer func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if !limiter.Allow() {
					watchLog.Debug("reload_rate_limited")
					return
				}
				if b.Send(ctx, bar.MsgReload) {
					watchLog.Info("config_changed", slog.String("path", path))
				}
			})
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			watchLog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
