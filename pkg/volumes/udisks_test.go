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
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func udisksObject(mountPoints []string, hints map[string]bool) map[string]map[string]dbus.Variant {
	block := map[string]dbus.Variant{
		"Device": dbus.MakeVariant([]byte("/dev/sdb1\x00")),
	}
	for k, v := range hints {
		block[k] = dbus.MakeVariant(v)
	}

	raw := make([][]byte, 0, len(mountPoints))
	for _, mp := range mountPoints {
		raw = append(raw, append([]byte(mp), 0))
	}

	return map[string]map[string]dbus.Variant{
		udisks2BlockInterface: block,
		udisks2FSInterface: {
			"MountPoints": dbus.MakeVariant(raw),
		},
	}
}

func TestMountPointsFromObjects(t *testing.T) {
	t.Parallel()

	objects := managedObjects{
		"/org/freedesktop/UDisks2/block_devices/sdb1": udisksObject(
			[]string{"/media/pi/STICK"}, nil),
		"/org/freedesktop/UDisks2/block_devices/sdc1": udisksObject(
			[]string{"/run/media/pi/CARD", "/mnt/card"}, map[string]bool{"HintSystem": false}),
		"/org/freedesktop/UDisks2/block_devices/sda1": udisksObject(
			[]string{"/"}, map[string]bool{"HintSystem": true}),
		"/org/freedesktop/UDisks2/block_devices/sda2": udisksObject(
			[]string{"/boot/efi"}, map[string]bool{"HintIgnore": true}),
		"/org/freedesktop/UDisks2/block_devices/sdd1": udisksObject(nil, nil),
		// drive objects have no Block or Filesystem interface
		"/org/freedesktop/UDisks2/drives/Kingston": {
			"org.freedesktop.UDisks2.Drive": {
				"Removable": dbus.MakeVariant(true),
			},
		},
	}

	assert.Equal(t, []string{
		"/media/pi/STICK",
		"/mnt/card",
		"/run/media/pi/CARD",
	}, mountPointsFromObjects(objects))
}

func TestMountPointsFromObjects_BlockWithoutFilesystem(t *testing.T) {
	t.Parallel()

	objects := managedObjects{
		"/org/freedesktop/UDisks2/block_devices/sdb": {
			udisks2BlockInterface: {"HintSystem": dbus.MakeVariant(false)},
		},
	}
	assert.Empty(t, mountPointsFromObjects(objects))
}

func TestDecodeMountPoints_WrongType(t *testing.T) {
	t.Parallel()

	props := map[string]dbus.Variant{
		"MountPoints": dbus.MakeVariant("/media/not-bytes"),
	}
	assert.Empty(t, decodeMountPoints(props))
	assert.Empty(t, decodeMountPoints(map[string]dbus.Variant{}))
}

func TestUDisksLister_ConnectError(t *testing.T) {
	t.Parallel()

	l := &UDisksLister{connect: func() (*dbus.Conn, error) {
		return nil, errors.New("no bus")
	}}

	_, err := l.Mounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bus")
}

func TestPartitionLister(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sys/block/sda/removable", []byte("0\n"), 0o444))
	require.NoError(t, fs.MkdirAll("/sys/block/sda/sda1", 0o755))

	filter := newRemovableFilter([]string{"/media/"})
	filter.fs = fs
	filter.resolve = identity
	filter.readable = func(string) bool { return true }

	var gotAll bool
	l := &PartitionLister{
		partitions: func(_ context.Context, all bool) ([]disk.PartitionStat, error) {
			gotAll = all
			return []disk.PartitionStat{
				{Device: "/dev/sda1", Mountpoint: "/media/internal", Fstype: "ext4"},
				{Device: "/dev/sdb1", Mountpoint: "/media/STICK", Fstype: "vfat"},
				{Device: "/dev/sdb1", Mountpoint: "/media/STICK", Fstype: "vfat"},
				{Device: "/dev/sdc1", Mountpoint: "/", Fstype: "ext4"},
			}, nil
		},
		filter: filter,
	}

	mounts, err := l.Mounts(context.Background())
	require.NoError(t, err)
	assert.False(t, gotAll, "only physical partitions are requested")
	assert.Equal(t, []string{"/media/STICK"}, mounts)
}

func TestPartitionLister_Error(t *testing.T) {
	t.Parallel()

	l := &PartitionLister{
		partitions: func(context.Context, bool) ([]disk.PartitionStat, error) {
			return nil, errors.New("permission denied")
		},
		filter: newRemovableFilter(nil),
	}

	_, err := l.Mounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list partitions")
}
