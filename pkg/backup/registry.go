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
	"sync/atomic"

	"github.com/ZaparooProject/zaparoo-backup/pkg/helpers/syncutil"
)

// Registry holds the one backup job allowed at a time. Reads are lock-free;
// Create and Clear are serialized.
type Registry struct {
	current atomic.Pointer[Job]
	mu      syncutil.Mutex
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Create starts a new job unless the current one is still running.
func (r *Registry) Create(source, destRoot string, opts ...Option) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.current.Load(); cur != nil && !cur.Status().Terminal() {
		return nil, ErrAlreadyRunning
	}

	job := NewJob(source, destRoot, opts...)
	r.current.Store(job)
	job.Start()

	return job, nil
}

// Current returns the job in the slot, or nil.
func (r *Registry) Current() *Job {
	return r.current.Load()
}

// Clear empties the slot. A job still waiting for confirmation is cancelled
// first so its worker exits; a job that is searching or copying can't be
// cleared.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if cur == nil {
		return ErrNoActiveJob
	}

	switch st := cur.Status(); {
	case st.Terminal():
	case st == AwaitingConfirmation:
		// may already have been tripped by the caller
		_ = cur.Cancel()
	default:
		return ErrAlreadyRunning
	}

	r.current.Store(nil)
	return nil
}

// Release empties the slot only if it still holds job. It is used after a
// cancel so a job created in the meantime isn't dropped.
func (r *Registry) Release(job *Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.CompareAndSwap(job, nil)
}
