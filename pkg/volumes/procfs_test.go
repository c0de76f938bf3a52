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

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMounts = `/dev/sda1 / ext4 rw,relatime 0 0
proc /proc proc rw,nosuid,nodev,noexec,relatime 0 0
tmpfs /run tmpfs rw,nosuid,nodev 0 0
/dev/sda2 /mnt/data ext4 rw,relatime 0 0
/dev/sdb1 /media/pi/USB\040STICK vfat rw,nosuid,nodev 0 0
/dev/sdc1 /media/pi/CARD exfat rw,nosuid,nodev 0 0
/dev/sdb2 /home/pi/stick vfat rw 0 0
//nas/share /media/pi/nas cifs rw 0 0
/dev/loop0 /media/pi/snap squashfs ro 0 0
/dev/sdd1 /media/pi/LOCKED vfat rw 0 0
`

func newTestProcFs(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proc/mounts", []byte(testMounts), 0o444))

	// sda is an internal disk, sdb and sdd are USB sticks, sdc has no sysfs entry
	require.NoError(t, afero.WriteFile(fs, "/sys/block/sda/removable", []byte("0\n"), 0o444))
	require.NoError(t, fs.MkdirAll("/sys/block/sda/sda1", 0o755))
	require.NoError(t, fs.MkdirAll("/sys/block/sda/sda2", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/sys/block/sdb/removable", []byte("1\n"), 0o444))
	require.NoError(t, fs.MkdirAll("/sys/block/sdb/sdb1", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/sys/block/sdd/removable", []byte("1\n"), 0o444))
	require.NoError(t, fs.MkdirAll("/sys/block/sdd/sdd1", 0o755))

	return fs
}

func identity(s string) (string, error) {
	return s, nil
}

func TestProcLister_FiltersRemovableMounts(t *testing.T) {
	t.Parallel()

	lister := NewProcLister(
		WithFs(newTestProcFs(t)),
		WithResolver(identity),
		WithReadableCheck(func(path string) bool { return path != "/media/pi/LOCKED" }),
	)

	mounts, err := lister.Mounts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/media/pi/CARD",
		"/media/pi/USB STICK",
	}, mounts)
}

func TestProcLister_CustomPrefixes(t *testing.T) {
	t.Parallel()

	lister := NewProcLister(
		WithFs(newTestProcFs(t)),
		WithResolver(identity),
		WithReadableCheck(func(string) bool { return true }),
		WithPrefixes([]string{"/home/"}),
	)

	mounts, err := lister.Mounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/pi/stick"}, mounts)
}

func TestProcLister_ResolvesDeviceSymlinks(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proc/mounts",
		[]byte("/dev/disk/by-uuid/1234-ABCD /media/pi/STICK vfat rw 0 0\n"), 0o444))
	require.NoError(t, afero.WriteFile(fs, "/sys/block/sda/removable", []byte("0\n"), 0o444))
	require.NoError(t, fs.MkdirAll("/sys/block/sda/sda1", 0o755))

	lister := NewProcLister(
		WithFs(fs),
		WithResolver(func(string) (string, error) { return "/dev/sda1", nil }),
		WithReadableCheck(func(string) bool { return true }),
	)

	mounts, err := lister.Mounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mounts, "resolved device is internal and must be skipped")
}

func TestProcLister_MissingMountTable(t *testing.T) {
	t.Parallel()

	lister := NewProcLister(WithFs(afero.NewMemMapFs()))

	_, err := lister.Mounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/proc/mounts")
}

func TestProcLister_CustomMountsPath(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/mounts",
		[]byte("/dev/sdz1 /media/x vfat rw 0 0\n"), 0o444))

	lister := NewProcLister(
		WithFs(fs),
		WithMountsPath("/tmp/mounts"),
		WithSysBlockPath("/nonexistent"),
		WithResolver(identity),
		WithReadableCheck(func(string) bool { return true }),
	)

	mounts, err := lister.Mounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/media/x"}, mounts)
}

func TestProcLister_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lister := NewProcLister(WithFs(newTestProcFs(t)), WithResolver(identity))
	_, err := lister.Mounts(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSysfsRemovable(t *testing.T) {
	t.Parallel()

	fs := newTestProcFs(t)

	tests := []struct {
		name      string
		dev       string
		removable bool
		known     bool
	}{
		{name: "whole removable disk", dev: "sdb", removable: true, known: true},
		{name: "partition of removable disk", dev: "sdb1", removable: true, known: true},
		{name: "partition of internal disk", dev: "sda2", removable: false, known: true},
		{name: "unknown device", dev: "mmcblk0p1", removable: false, known: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			removable, known := sysfsRemovable(fs, "/sys/block", tt.dev)
			assert.Equal(t, tt.removable, removable)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestUnescapeMountPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "/media/plain", want: "/media/plain"},
		{in: `/media/USB\040STICK`, want: "/media/USB STICK"},
		{in: `/media/tab\011here`, want: "/media/tab\there"},
		{in: `/media/back\134slash`, want: `/media/back\slash`},
		{in: `/media/trailing\04`, want: `/media/trailing\04`},
		{in: `/media/not\xyzoctal`, want: `/media/not\xyzoctal`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, unescapeMountPath(tt.in))
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got := normalize([]string{"/media/b", "", "/media/a", "/media/b"})
	assert.Equal(t, []string{"/media/a", "/media/b"}, got)
	assert.Empty(t, normalize(nil))
}

func TestListerFunc(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	var l Lister = ListerFunc(func(context.Context) ([]string, error) {
		return nil, want
	})

	_, err := l.Mounts(context.Background())
	assert.ErrorIs(t, err, want)
}

func TestNew_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "floppy", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown lister")
}

func TestNew_ProcFS(t *testing.T) {
	t.Parallel()

	l, err := New(context.Background(), "procfs", []string{"/run/usb/"})
	require.NoError(t, err)

	proc, ok := l.(*ProcLister)
	require.True(t, ok)
	assert.Equal(t, []string{"/run/usb/"}, proc.filter.prefixes)
}
