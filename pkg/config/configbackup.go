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

package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
)

const (
	ListerAuto   = "auto"
	ListerUDisks = "udisks"
	ListerProcFS = "procfs"
	ListerPsutil = "psutil"

	DefaultPollInterval = 1 * time.Second
	DefaultBackupDir    = "backup"
)

var (
	DefaultWatchDirs     = []string{"/media", "/run/media", "/mnt"}
	DefaultMediaPrefixes = []string{"/media/", "/run/media/", "/mnt/"}
)

type Backup struct {
	WatchMounts   *bool    `toml:"watch_mounts,omitempty"`
	RootDir       string   `toml:"root_dir,omitempty"`
	PollInterval  string   `toml:"poll_interval,omitempty"`
	Lister        string   `toml:"lister,omitempty"`
	WatchDirs     []string `toml:"watch_dirs,omitempty"`
	MediaPrefixes []string `toml:"media_prefixes,omitempty"`
}

func (b *Backup) validate() error {
	if b.Lister != "" && !slices.Contains(
		[]string{ListerAuto, ListerUDisks, ListerProcFS, ListerPsutil},
		b.Lister,
	) {
		return fmt.Errorf("unknown lister: %s", b.Lister)
	}

	if b.PollInterval != "" {
		d, err := time.ParseDuration(b.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive: %s", b.PollInterval)
		}
	}

	return nil
}

// BackupRootDir is the parent of the per-volume destination trees. Relative
// paths are resolved against the user's home directory.
func (c *Instance) BackupRootDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	root := c.vals.Backup.RootDir
	if root == "" {
		return filepath.Join(xdg.Home, DefaultBackupDir)
	}
	if !filepath.IsAbs(root) {
		return filepath.Join(xdg.Home, root)
	}
	return filepath.Clean(root)
}

func (c *Instance) SetBackupRootDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Backup.RootDir = dir
}

func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.vals.Backup.PollInterval == "" {
		return DefaultPollInterval
	}
	d, err := time.ParseDuration(c.vals.Backup.PollInterval)
	if err != nil || d <= 0 {
		return DefaultPollInterval
	}
	return d
}

func (c *Instance) Lister() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Backup.Lister == "" {
		return ListerAuto
	}
	return c.vals.Backup.Lister
}

func (c *Instance) WatchMounts() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Backup.WatchMounts == nil {
		return true
	}
	return *c.vals.Backup.WatchMounts
}

func (c *Instance) WatchDirs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.vals.Backup.WatchDirs) == 0 {
		return slices.Clone(DefaultWatchDirs)
	}
	return slices.Clone(c.vals.Backup.WatchDirs)
}

func (c *Instance) MediaPrefixes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.vals.Backup.MediaPrefixes) == 0 {
		return slices.Clone(DefaultMediaPrefixes)
	}
	return slices.Clone(c.vals.Backup.MediaPrefixes)
}
