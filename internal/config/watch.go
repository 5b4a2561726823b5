// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultWatchDebounce is how long the file must be quiet before a reload.
const DefaultWatchDebounce = 250 * time.Millisecond

// ReloadFunc receives the reloaded config, or the error that prevented it.
// On error the previous global config stays in effect.
type ReloadFunc func(cfg *Config, err error)

// =============================================================================
// FILE WATCHER
// =============================================================================

// Watcher reloads a config file when it changes and installs the result as
// the global config.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	pending time.Time // zero when no change is pending

	ctx    context.Context
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// Watch starts watching path until ctx is done or Close is called.
// The parent directory is watched so editors that replace the file on save
// are still seen.
func Watch(ctx context.Context, path string, onReload ReloadFunc) (*Watcher, error) {
	return newWatcher(ctx, path, DefaultWatchDebounce, onReload)
}

func newWatcher(ctx context.Context, path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:     abs,
		watcher:  fsw,
		debounce: debounce,
		onReload: onReload,
		ctx:      ctx,
		cancel:   cancel,
	}

	w.done.Add(2)
	go w.processEvents()
	go w.processPending()
	return w, nil
}

// Close stops watching and waits for the background goroutines to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.done.Wait()
	return err
}

// processEvents records changes to the watched file.
func (w *Watcher) processEvents() {
	defer w.done.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config watcher error")
		}
	}
}

// processPending reloads once the file has been quiet for the debounce period.
func (w *Watcher) processPending() {
	defer w.done.Done()

	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case now := <-ticker.C:
			w.mu.Lock()
			ready := !w.pending.IsZero() && now.Sub(w.pending) >= w.debounce
			if ready {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if ready {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		log.WithError(err).Warn("config reload failed; keeping previous config")
	} else {
		SetGlobal(cfg)
		log.WithField("path", w.path).Info("config reloaded")
	}
	if w.onReload != nil {
		w.onReload(cfg, err)
	}
}
