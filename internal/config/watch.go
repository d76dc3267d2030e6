package config

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "fisherbot/pkg/logx"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
	validateTimeout = 5 * time.Second
)

var errWatcherClosed = errors.New("config watcher closed")

// Watch reloads the config whenever its file changes, until ctx is done.
// The directory is watched rather than the file so editors that replace the
// file on save keep working. A failed watcher is recreated with jittered
// exponential backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	backoff := watchBackoffMin

	for ctx.Err() == nil {
		err := m.watchOnce(ctx, dir, file, func() { backoff = watchBackoffMin })
		if ctx.Err() != nil {
			break
		}
		d := backoff + rand.N(backoff/2+1)
		backoff = min(backoff*2, watchBackoffMax)
		m.log.Warn("config watcher failed; restarting",
			logx.String("dir", dir), logx.Duration("backoff", d), logx.Err(err))
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}
	return nil
}

// watchOnce runs one fsnotify watcher until it breaks or ctx ends. Bursts of
// events for the file collapse into one reload after reloadDebounce.
func (m *ConfigManager) watchOnce(ctx context.Context, dir, file string, healthy func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	healthy()
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-debounce.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) || ev.Op == 0 {
				continue
			}
			debounce.Reset(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			switch {
			case err == nil:
			case errors.Is(err, fsnotify.ErrEventOverflow):
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				debounce.Reset(reloadDebounce)
			case errors.Is(err, fsnotify.ErrClosed):
				return err
			default:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
