// Package power tells the tracker when the device is idle so polling can be
// suspended.
package power

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"firestige.xyz/stallwatch/internal/core"
	"firestige.xyz/stallwatch/internal/metrics"
)

// Never is an idle signal that never reports idle.
type Never struct{}

func (Never) IsIdle() bool                     { return false }
func (Never) AddListener(core.IdleListener)    {}
func (Never) RemoveListener(core.IdleListener) {}

// FileSignal reports idle while a flag file exists and holds "1" or "true".
// The file's directory is watched so the flag may be created and removed at
// will.
type FileSignal struct {
	path string
	idle atomic.Bool

	mu        sync.Mutex
	listeners []core.IdleListener

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileSignal reads the current state of path. Call Start to follow
// changes.
func NewFileSignal(path string) *FileSignal {
	s := &FileSignal{path: filepath.Clean(path), done: make(chan struct{})}
	s.idle.Store(readFlag(s.path))
	metrics.DeviceIdle.Set(metrics.BoolValue(s.idle.Load()))
	return s
}

// IsIdle implements the tracker's idle signal.
func (s *FileSignal) IsIdle() bool { return s.idle.Load() }

// AddListener registers l for idle changes.
func (s *FileSignal) AddListener(l core.IdleListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener unregisters l.
func (s *FileSignal) RemoveListener(l core.IdleListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.listeners {
		if x == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Start watches the flag file's directory.
func (s *FileSignal) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create idle file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = w

	s.wg.Add(1)
	go s.loop()

	slog.Info("idle signal started", "file", s.path, "idle", s.IsIdle())
	return nil
}

// Close stops watching. Safe to call without Start.
func (s *FileSignal) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	s.watcher = nil
	return err
}

func (s *FileSignal) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			s.refresh()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("idle file watcher error", "file", s.path, "error", err)
		}
	}
}

// refresh re-reads the flag and notifies listeners on change.
func (s *FileSignal) refresh() {
	idle := readFlag(s.path)
	if s.idle.Swap(idle) == idle {
		return
	}
	metrics.DeviceIdle.Set(metrics.BoolValue(idle))
	slog.Info("device idle state changed", "idle", idle)

	s.mu.Lock()
	listeners := append([]core.IdleListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnIdleChanged(idle)
	}
}

func readFlag(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read idle file", "file", path, "error", err)
		}
		return false
	}
	v := strings.ToLower(string(bytes.TrimSpace(data)))
	return v == "1" || v == "true"
}
