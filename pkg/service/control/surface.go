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

// Package control is the operator-facing side of the backup service: list
// volumes, start a job on one, confirm or cancel it, and poll its progress.
// It has no transport of its own; pkg/api exposes it over HTTP.
package control

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-backup/pkg/backup"
	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/rs/zerolog/log"
)

// StatusReady is reported when there is no job.
const StatusReady = "Ready"

var (
	ErrNoMountSelected = errors.New("no mount selected")
	ErrUnknownMount    = errors.New("mount is not attached")
)

// MountSource is the current set of attached volumes.
type MountSource interface {
	Mounts() []string
	Contains(path string) bool
}

type Surface struct {
	mounts   MountSource
	registry *backup.Registry
	cfg      *config.Instance
	jobOpts  []backup.Option
}

// New creates a Surface. jobOpts are applied to every job it creates.
func New(
	mounts MountSource,
	registry *backup.Registry,
	cfg *config.Instance,
	jobOpts ...backup.Option,
) *Surface {
	return &Surface{
		mounts:   mounts,
		registry: registry,
		cfg:      cfg,
		jobOpts:  jobOpts,
	}
}

func (s *Surface) ListMounts() []string {
	return s.mounts.Mounts()
}

// SelectSource starts a backup of mountPath and waits until the search for
// missing files has finished, returning how many were found. It doesn't wait
// for confirmation. If ctx ends first the job keeps searching and can still
// be polled.
func (s *Surface) SelectSource(ctx context.Context, mountPath string) (int, error) {
	if mountPath == "" {
		return 0, ErrNoMountSelected
	}
	if !s.mounts.Contains(mountPath) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMount, mountPath)
	}

	dest := filepath.Join(s.cfg.BackupRootDir(), filepath.Base(mountPath))
	job, err := s.registry.Create(mountPath, dest, s.jobOpts...)
	if err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}

	log.Info().
		Str("job", job.ID()).
		Str("source", mountPath).
		Str("dest", dest).
		Msg("backup job created")

	select {
	case <-job.SearchDone():
	case <-ctx.Done():
		return 0, fmt.Errorf("waiting for search: %w", ctx.Err())
	}

	p := job.Progress()
	if p.Status == backup.Failed {
		return 0, p.Err
	}
	return p.TotalFiles, nil
}

func (s *Surface) Confirm() error {
	job := s.registry.Current()
	if job == nil {
		return backup.ErrNoActiveJob
	}
	if err := job.Confirm(); err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	log.Info().Str("job", job.ID()).Msg("backup confirmed")
	return nil
}

// Cancel aborts a job waiting for confirmation and clears it, so the next
// poll reports Ready.
func (s *Surface) Cancel() error {
	job := s.registry.Current()
	if job == nil {
		return backup.ErrNoActiveJob
	}
	if err := job.Cancel(); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	s.registry.Release(job)
	log.Info().Str("job", job.ID()).Msg("backup cancelled by operator")
	return nil
}

// PollStatus never blocks and has no side effects.
func (s *Surface) PollStatus() models.StatusResponse {
	job := s.registry.Current()
	if job == nil {
		return StatusResponse(nil)
	}
	p := job.Progress()
	return StatusResponse(&p)
}

// StatusResponse converts a job snapshot into the polled status. A nil
// snapshot means there is no job.
func StatusResponse(p *backup.Progress) models.StatusResponse {
	if p == nil {
		return models.StatusResponse{
			Status: StatusReady,
			Label:  StatusLabel(nil),
		}
	}

	resp := models.StatusResponse{
		Status:        p.Status.String(),
		Label:         StatusLabel(p),
		CopiedCount:   p.CopiedCount,
		TotalFiles:    p.TotalFiles,
		FailureReason: p.FailureReason,
	}
	if p.CurrentFile != "" {
		resp.CurrentFile = filepath.Base(p.CurrentFile)
	}
	return resp
}

// StatusLabel is the short text a UI shows for a job's state.
func StatusLabel(p *backup.Progress) string {
	if p == nil {
		return StatusReady
	}

	switch p.Status {
	case backup.Idle:
		return StatusReady
	case backup.Searching:
		return "Searching"
	case backup.AwaitingConfirmation:
		return "Searched Files"
	case backup.Copying:
		return "Backing up"
	case backup.Done:
		return "Done"
	case backup.Failed:
		if p.FailureReason == "" {
			return "Error"
		}
		return "Error: " + p.FailureReason
	default:
		return p.Status.String()
	}
}
