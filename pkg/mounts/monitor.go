// Zaparoo Backup
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Backup.
//
// Zaparoo Backup is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Backup is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Backup.  If not, see <http://www.gnu.org/licenses/>.

// Package mounts tracks which removable volumes are attached. A Monitor polls
// a volumes.Lister on a fixed interval, reports mount points that appeared or
// went away, and publishes the current set for lock-free readers.
package mounts

import (
	"context"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/zaparoo-backup/pkg/volumes"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPollInterval is how often the lister is queried.
	DefaultPollInterval = time.Second

	watchDebounce = 250 * time.Millisecond
)

// Callbacks are invoked from the monitor goroutine, one call per path. A
// slow callback delays the next poll.
type Callbacks struct {
	OnAdded   func(path string)
	OnRemoved func(path string)
}

// Monitor polls for mounted removable volumes.
type Monitor struct {
	lister       volumes.Lister
	clock        clockwork.Clock
	watcher      *fsnotify.Watcher
	current      atomic.Pointer[[]string]
	cancel       context.CancelFunc
	rescan       chan struct{}
	done         chan struct{}
	callbacks    Callbacks
	watchDirs    []string
	wg           sync.WaitGroup
	pollInterval time.Duration
	startOnce    sync.Once
	stopOnce     sync.Once
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval sets the polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithClock sets the clock driving the poll ticker (for testing).
func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithWatchDirs watches the given directories for entries being created or
// removed and rescans early when they change. Directories that don't exist
// are ignored.
func WithWatchDirs(dirs []string) Option {
	return func(m *Monitor) {
		m.watchDirs = dirs
	}
}

// WithCallbacks sets the add and remove callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(m *Monitor) {
		m.callbacks = cb
	}
}

// New creates a monitor over lister. It does nothing until Start is called.
func New(lister volumes.Lister, opts ...Option) *Monitor {
	m := &Monitor{
		lister:       lister,
		clock:        clockwork.NewRealClock(),
		pollInterval: DefaultPollInterval,
		rescan:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	empty := []string{}
	m.current.Store(&empty)

	return m
}

// Start polls once straight away and then keeps polling in the background
// until Stop. Calling Start more than once has no effect.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel

		if len(m.watchDirs) > 0 {
			m.startWatcher()
		}

		m.wg.Add(1)
		go m.pollLoop(ctx)

		log.Info().
			Dur("interval", m.pollInterval).
			Strs("watch_dirs", m.watchDirs).
			Msg("mount monitor started")
	})
}

// Stop ends polling and waits for the monitor goroutines to exit. It is safe
// to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		if m.cancel != nil {
			m.cancel()
		}
		if m.watcher != nil {
			_ = m.watcher.Close()
		}
		m.wg.Wait()
		log.Info().Msg("mount monitor stopped")
	})
}

// Mounts returns a copy of the current mount set, sorted.
func (m *Monitor) Mounts() []string {
	return slices.Clone(*m.current.Load())
}

// Contains reports whether path is in the current mount set.
func (m *Monitor) Contains(path string) bool {
	_, found := slices.BinarySearch(*m.current.Load(), path)
	return found
}

func (m *Monitor) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("failed to create mount dir watcher, polling only")
		return
	}

	watched := 0
	for _, dir := range m.watchDirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			log.Debug().Str("dir", dir).Msg("mount dir not present, not watching")
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to watch mount dir")
			continue
		}
		watched++
	}

	if watched == 0 {
		_ = watcher.Close()
		return
	}

	m.watcher = watcher
	m.wg.Add(1)
	go m.watchLoop(watcher)
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	m.poll(ctx)

	ticker := m.clock.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.Chan():
			m.poll(ctx)
		case <-m.rescan:
			m.poll(ctx)
		}
	}
}

// watchLoop turns bursts of directory events into a single rescan request.
func (m *Monitor) watchLoop(watcher *fsnotify.Watcher) {
	defer m.wg.Done()

	debounce := m.clock.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.Chan()
	}

	for {
		select {
		case <-m.done:
			debounce.Stop()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			log.Debug().Str("path", event.Name).Msg("mount dir changed")
			debounce.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("mount dir watcher error")
		case <-debounce.Chan():
			select {
			case m.rescan <- struct{}{}:
			default:
			}
		}
	}
}

// poll queries the lister and notifies about changes. A lister error leaves
// the previous set in place; the next tick tries again.
func (m *Monitor) poll(ctx context.Context) {
	found, err := m.lister.Mounts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("failed to enumerate mounts")
		}
		return
	}

	next := slices.Clone(found)
	slices.Sort(next)
	next = slices.Compact(next)

	prev := *m.current.Load()
	added, removed := diffSets(prev, next)
	m.current.Store(&next)

	for _, path := range added {
		log.Info().Str("mount", path).Msg("volume mounted")
		if m.callbacks.OnAdded != nil {
			m.callbacks.OnAdded(path)
		}
	}
	for _, path := range removed {
		log.Info().Str("mount", path).Msg("volume removed")
		if m.callbacks.OnRemoved != nil {
			m.callbacks.OnRemoved(path)
		}
	}
}

// diffSets compares two sorted, duplicate-free sets. Both results are sorted.
func diffSets(prev, next []string) (added, removed []string) {
	i, j := 0, 0
	for i < len(prev) && j < len(next) {
		switch {
		case prev[i] == next[j]:
			i++
			j++
		case prev[i] < next[j]:
			removed = append(removed, prev[i])
			i++
		default:
			added = append(added, next[j])
			j++
		}
	}
	removed = append(removed, prev[i:]...)
	added = append(added, next[j:]...)
	return added, removed
}
