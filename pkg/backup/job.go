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

package backup

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// TimestampLayout names each run's directory under the destination root.
const TimestampLayout = "20060102150405"

// Progress is a point-in-time view of a job. The worker publishes a fresh
// value on every change, so a Progress is never modified after it's handed
// out.
type Progress struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	Err           error
	ID            string
	Source        string
	Destination   string
	CurrentFile   string
	FailureReason string
	FailedPath    string
	Status        Status
	CopiedCount   int
	TotalFiles    int
}

// Job is a single backup run from a source directory into destRoot. All
// state changes happen on the job's own worker goroutine.
type Job struct {
	fs         afero.Fs
	clock      clockwork.Clock
	observer   func(Progress)
	gate       *gate
	progress   atomic.Pointer[Progress]
	searchDone chan struct{}
	done       chan struct{}
	id         string
	source     string
	destRoot   string
	startOnce  sync.Once
}

// Option configures a Job.
type Option func(*Job)

// WithFs sets the filesystem both trees are read from and written to.
func WithFs(afs afero.Fs) Option {
	return func(j *Job) {
		j.fs = afs
	}
}

// WithClock sets the clock used for the run directory name and timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(j *Job) {
		j.clock = clock
	}
}

// WithObserver registers a function called from the worker after every
// published change.
func WithObserver(fn func(Progress)) Option {
	return func(j *Job) {
		j.observer = fn
	}
}

// NewJob creates an idle job. Nothing happens until Start.
func NewJob(source, destRoot string, opts ...Option) *Job {
	j := &Job{
		fs:         afero.NewOsFs(),
		clock:      clockwork.NewRealClock(),
		gate:       newGate(),
		searchDone: make(chan struct{}),
		done:       make(chan struct{}),
		id:         uuid.New().String(),
		source:     source,
		destRoot:   destRoot,
	}
	for _, opt := range opts {
		opt(j)
	}

	j.progress.Store(&Progress{
		ID:     j.id,
		Source: source,
		Status: Idle,
	})

	return j
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Source() string {
	return j.source
}

func (j *Job) DestinationRoot() string {
	return j.destRoot
}

// Start launches the worker. Only the first call does anything.
func (j *Job) Start() {
	j.startOnce.Do(func() {
		go j.run()
	})
}

// SearchDone is closed once the search has finished, whatever its outcome.
func (j *Job) SearchDone() <-chan struct{} {
	return j.searchDone
}

// Done is closed once the job reaches Done or Failed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Progress returns the latest published snapshot. It never blocks.
func (j *Job) Progress() Progress {
	return *j.progress.Load()
}

func (j *Job) Status() Status {
	return j.progress.Load().Status
}

// Confirm lets a job waiting for confirmation start copying.
func (j *Job) Confirm() error {
	return j.trip(decisionConfirm)
}

// Cancel ends a job waiting for confirmation without copying anything. It
// can't stop a copy that has already started.
func (j *Job) Cancel() error {
	return j.trip(decisionCancel)
}

func (j *Job) trip(d decision) error {
	if j.Status() != AwaitingConfirmation {
		return ErrNotAwaitingConfirmation
	}
	if !j.gate.trip(d) {
		return ErrNotAwaitingConfirmation
	}
	return nil
}

func (j *Job) publish(update func(p *Progress)) {
	next := *j.progress.Load()
	update(&next)
	j.progress.Store(&next)
	if j.observer != nil {
		j.observer(next)
	}
}

func (j *Job) finish(status Status) {
	j.publish(func(p *Progress) {
		p.Status = status
		p.FinishedAt = j.clock.Now()
	})
}

func (j *Job) fail(err error) {
	j.publish(func(p *Progress) {
		p.Status = Failed
		p.FinishedAt = j.clock.Now()
		p.Err = err
		p.FailureReason = err.Error()
		var copyErr *CopyError
		if errors.As(err, &copyErr) {
			p.FailedPath = copyErr.Path
		}
	})
	log.Error().Err(err).Str("job", j.id).Msg("backup failed")
}

func (j *Job) run() {
	defer close(j.done)

	j.publish(func(p *Progress) {
		p.Status = Searching
		p.StartedAt = j.clock.Now()
	})
	log.Info().
		Str("job", j.id).
		Str("source", j.source).
		Str("dest", j.destRoot).
		Msg("searching for files to back up")

	missing, err := ComputeMissing(context.Background(), j.fs, j.source, j.destRoot)
	if err != nil {
		j.fail(&SearchError{Err: err})
		close(j.searchDone)
		return
	}

	if len(missing) == 0 {
		j.finish(Done)
		close(j.searchDone)
		log.Info().Str("job", j.id).Msg("nothing to back up")
		return
	}

	j.publish(func(p *Progress) {
		p.Status = AwaitingConfirmation
		p.TotalFiles = len(missing)
	})
	close(j.searchDone)
	log.Info().Str("job", j.id).Int("files", len(missing)).Msg("waiting for confirmation")

	if j.gate.wait() == decisionCancel {
		j.finish(Done)
		log.Info().Str("job", j.id).Msg("backup cancelled")
		return
	}

	j.copyAll(missing)
}

func (j *Job) copyAll(files []string) {
	dest := filepath.Join(j.destRoot, j.clock.Now().Format(TimestampLayout))
	j.publish(func(p *Progress) {
		p.Status = Copying
		p.Destination = dest
	})
	log.Info().Str("job", j.id).Str("dest", dest).Msg("copying files")

	for _, src := range files {
		j.publish(func(p *Progress) {
			p.CurrentFile = src
		})

		rel, err := filepath.Rel(j.source, src)
		if err != nil {
			j.fail(&CopyError{Path: src, Err: err})
			return
		}

		if err := copyFile(j.fs, src, filepath.Join(dest, rel)); err != nil {
			j.fail(&CopyError{Path: src, Err: err})
			return
		}

		j.publish(func(p *Progress) {
			p.CopiedCount++
		})
	}

	j.finish(Done)
	log.Info().
		Str("job", j.id).
		Int("copied", len(files)).
		Msg("backup complete")
}
