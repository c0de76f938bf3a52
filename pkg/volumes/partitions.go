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

package volumes

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/shirou/gopsutil/v4/disk"
)

// PartitionLister asks gopsutil for the partition table, the same data
// psutil.disk_partitions reports, and applies the removable filter to it.
type PartitionLister struct {
	partitions func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
	filter     removableFilter
}

func NewPartitionLister(prefixes []string) *PartitionLister {
	if len(prefixes) == 0 {
		prefixes = config.DefaultMediaPrefixes
	}
	return &PartitionLister{
		partitions: disk.PartitionsWithContext,
		filter:     newRemovableFilter(prefixes),
	}
}

func (l *PartitionLister) Mounts(ctx context.Context) ([]string, error) {
	parts, err := l.partitions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	mounts := make([]string, 0, len(parts))
	for _, p := range parts {
		entry := mountEntry{
			device:    p.Device,
			mountPath: p.Mountpoint,
			fsType:    p.Fstype,
		}
		if l.filter.keep(entry) {
			mounts = append(mounts, p.Mountpoint)
		}
	}

	return normalize(mounts), nil
}
