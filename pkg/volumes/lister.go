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

// Package volumes enumerates the mount points of removable volumes that are
// currently attached. It is the only part of the backup service that talks to
// the OS about devices; everything above it only sees mount paths.
package volumes

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/rs/zerolog/log"
)

// Lister returns the mount paths of removable volumes, sorted and without
// duplicates. Errors are transient: callers are expected to try again later.
type Lister interface {
	Mounts(ctx context.Context) ([]string, error)
}

// ListerFunc adapts a plain function to the Lister interface.
type ListerFunc func(ctx context.Context) ([]string, error)

// Mounts implements Lister.
func (f ListerFunc) Mounts(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// New builds the Lister selected in config. "auto" uses UDisks2 when it is
// reachable on the system bus and falls back to reading /proc/mounts.
func New(ctx context.Context, kind string, prefixes []string) (Lister, error) {
	switch kind {
	case config.ListerUDisks:
		if !UDisksAvailable(ctx) {
			return nil, errors.New("udisks2 is not available on the system bus")
		}
		return NewUDisksLister(), nil
	case config.ListerProcFS:
		return NewProcLister(WithPrefixes(prefixes)), nil
	case config.ListerPsutil:
		return NewPartitionLister(prefixes), nil
	case config.ListerAuto, "":
		if UDisksAvailable(ctx) {
			log.Debug().Msg("using udisks2 for volume listing")
			return NewUDisksLister(), nil
		}
		log.Debug().Msg("udisks2 unavailable, reading /proc/mounts for volume listing")
		return NewProcLister(WithPrefixes(prefixes)), nil
	default:
		return nil, fmt.Errorf("unknown lister: %s", kind)
	}
}

// normalize sorts, de-duplicates and drops empty entries.
func normalize(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
