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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	procMountsPath = "/proc/mounts"
	sysBlockPath   = "/sys/block"
)

var systemFSTypes = map[string]bool{
	"sysfs": true, "proc": true, "devtmpfs": true, "devpts": true, "tmpfs": true,
	"cgroup": true, "cgroup2": true, "pstore": true, "bpf": true, "configfs": true,
	"selinuxfs": true, "debugfs": true, "tracefs": true, "fusectl": true,
	"fuse.portal": true, "mqueue": true, "hugetlbfs": true, "autofs": true,
	"efivarfs": true, "binfmt_misc": true, "overlay": true, "squashfs": true,
}

// mountEntry is one candidate line from the mount table.
type mountEntry struct {
	device    string
	mountPath string
	fsType    string
}

// removableFilter decides which mount table entries are backup sources. It
// is shared by the procfs and gopsutil listers.
type removableFilter struct {
	fs       afero.Fs
	resolve  func(string) (string, error)
	readable func(string) bool
	sysBlock string
	prefixes []string
}

func (f *removableFilter) keep(e mountEntry) bool {
	if systemFSTypes[e.fsType] {
		return false
	}

	if !strings.HasPrefix(e.device, "/dev/") {
		return false
	}

	if !hasAnyPrefix(e.mountPath, f.prefixes) {
		return false
	}

	devName := filepath.Base(e.device)
	if resolved, err := f.resolve(e.device); err == nil {
		devName = filepath.Base(resolved)
	}

	removable, known := sysfsRemovable(f.fs, f.sysBlock, devName)
	if known && !removable {
		log.Debug().
			Str("device", e.device).
			Str("mount_path", e.mountPath).
			Msg("skipping non-removable device")
		return false
	}

	if !f.readable(e.mountPath) {
		log.Debug().Str("mount_path", e.mountPath).Msg("skipping unreadable mount")
		return false
	}

	return true
}

// sysfsRemovable reads the removable flag for a block device. Partitions
// don't carry the flag themselves, so the parent disk is looked up. known is
// false when sysfs has no entry for the device at all.
func sysfsRemovable(fs afero.Fs, sysBlock, devName string) (removable, known bool) {
	if flag, ok := readFlag(fs, filepath.Join(sysBlock, devName, "removable")); ok {
		return flag, true
	}

	disks, err := afero.ReadDir(fs, sysBlock)
	if err != nil {
		return false, false
	}

	for _, disk := range disks {
		partPath := filepath.Join(sysBlock, disk.Name(), devName)
		if exists, _ := afero.DirExists(fs, partPath); !exists {
			continue
		}
		if flag, ok := readFlag(fs, filepath.Join(sysBlock, disk.Name(), "removable")); ok {
			return flag, true
		}
	}

	return false, false
}

func readFlag(fs afero.Fs, path string) (value, ok bool) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return false, false
	}
	return string(bytes.TrimSpace(data)) == "1", true
}

// unescapeMountPath decodes the octal escapes the kernel uses for spaces,
// tabs, newlines and backslashes in /proc/mounts.
func unescapeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ProcLister reads the kernel mount table. It works on minimal systems where
// UDisks2 isn't running.
type ProcLister struct {
	filter     removableFilter
	mountsPath string
}

type ProcOption func(*ProcLister)

// WithFs sets the filesystem /proc and /sys are read from (for testing).
func WithFs(fs afero.Fs) ProcOption {
	return func(l *ProcLister) {
		l.filter.fs = fs
	}
}

// WithPrefixes sets which mount point prefixes count as removable media.
func WithPrefixes(prefixes []string) ProcOption {
	return func(l *ProcLister) {
		if len(prefixes) > 0 {
			l.filter.prefixes = prefixes
		}
	}
}

// WithSysBlockPath sets a custom /sys/block path (for testing).
func WithSysBlockPath(path string) ProcOption {
	return func(l *ProcLister) {
		l.filter.sysBlock = path
	}
}

// WithMountsPath sets a custom /proc/mounts path (for testing).
func WithMountsPath(path string) ProcOption {
	return func(l *ProcLister) {
		l.mountsPath = path
	}
}

// WithResolver replaces symlink resolution of device nodes (for testing).
func WithResolver(resolve func(string) (string, error)) ProcOption {
	return func(l *ProcLister) {
		l.filter.resolve = resolve
	}
}

// WithReadableCheck replaces the mount point access check (for testing).
func WithReadableCheck(readable func(string) bool) ProcOption {
	return func(l *ProcLister) {
		l.filter.readable = readable
	}
}

func NewProcLister(opts ...ProcOption) *ProcLister {
	l := &ProcLister{
		mountsPath: procMountsPath,
		filter:     newRemovableFilter(config.DefaultMediaPrefixes),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newRemovableFilter(prefixes []string) removableFilter {
	return removableFilter{
		fs:       afero.NewOsFs(),
		resolve:  filepath.EvalSymlinks,
		readable: isReadableDir,
		sysBlock: sysBlockPath,
		prefixes: prefixes,
	}
}

func (l *ProcLister) Mounts(ctx context.Context) ([]string, error) {
	data, err := afero.ReadFile(l.filter.fs, l.mountsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.mountsPath, err)
	}

	var mounts []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("listing mounts: %w", err)
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		entry := mountEntry{
			device:    unescapeMountPath(fields[0]),
			mountPath: unescapeMountPath(fields[1]),
			fsType:    fields[2],
		}
		if l.filter.keep(entry) {
			mounts = append(mounts, entry.mountPath)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", l.mountsPath, err)
	}

	return normalize(mounts), nil
}
