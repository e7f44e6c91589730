package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
)

const defaultWatchDebounce = 200 * time.Millisecond

// WatchOptions tunes Watch.
type WatchOptions struct {
	// Debounce collapses bursts of writes; editors often write a file
	// several times per save.
	Debounce time.Duration
	// OnError receives reload and watcher errors. Nil drops them.
	OnError func(error)
}

// Watch reloads path whenever it changes and passes the result to onChange.
// The parent directory is watched so atomic rename-based saves are seen.
// It returns once the watcher is running; cancel ctx to stop it.
func Watch(ctx context.Context, path string, opts WatchOptions, onChange func(*Config)) error {
	if onChange == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "watch requires a change callback")
	}
	path = expandHomeDir(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "resolving config path").WithContext("path", path)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "creating config watcher")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "watching config directory").WithContext("path", abs)
	}

	go runWatch(ctx, watcher, abs, opts, onChange)
	return nil
}

func runWatch(ctx context.Context, watcher *fsnotify.Watcher, path string, opts WatchOptions, onChange func(*Config)) {
	defer watcher.Close()

	report := func(err error) {
		if opts.OnError != nil && err != nil {
			opts.OnError(err)
		}
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				timer.Reset(opts.Debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			cfg, err := LoadFromPath(path)
			if err != nil {
				report(err)
				continue
			}
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			report(apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "config watcher"))
		}
	}
}
