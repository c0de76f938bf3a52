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
	"slices"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	udisks2Service        = "org.freedesktop.UDisks2"
	udisks2Path           = "/org/freedesktop/UDisks2"
	udisks2BlockInterface = "org.freedesktop.UDisks2.Block"
	udisks2FSInterface    = "org.freedesktop.UDisks2.Filesystem"
	dbusObjectManager     = "org.freedesktop.DBus.ObjectManager"

	availabilityTimeout = 3 * time.Second
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// UDisksAvailable checks that the system bus is reachable and UDisks2 owns
// its well-known name.
func UDisksAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	// A private connection can be closed without affecting the shared one
	// the lister uses.
	conn, err := dbus.SystemBusPrivate()
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Auth(nil); err != nil {
		return false
	}
	if err := conn.Hello(); err != nil {
		return false
	}

	var names []string
	obj := conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus")
	if err := obj.CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return false
	}

	return slices.Contains(names, udisks2Service)
}

// UDisksLister asks UDisks2 for every filesystem it manages and returns the
// mount points of the ones that aren't system devices.
type UDisksLister struct {
	connect func() (*dbus.Conn, error)
}

func NewUDisksLister() *UDisksLister {
	return &UDisksLister{connect: dbus.SystemBus}
}

func (l *UDisksLister) Mounts(ctx context.Context) ([]string, error) {
	conn, err := l.connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system D-Bus: %w", err)
	}

	var objects managedObjects
	obj := conn.Object(udisks2Service, dbus.ObjectPath(udisks2Path))
	call := obj.CallWithContext(ctx, dbusObjectManager+".GetManagedObjects", 0)
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("failed to get udisks2 objects: %w", err)
	}

	return mountPointsFromObjects(objects), nil
}

func mountPointsFromObjects(objects managedObjects) []string {
	var mounts []string
	for _, interfaces := range objects {
		blockProps, hasBlock := interfaces[udisks2BlockInterface]
		fsProps, hasFS := interfaces[udisks2FSInterface]
		if !hasBlock || !hasFS {
			continue
		}

		if boolProp(blockProps, "HintSystem") || boolProp(blockProps, "HintIgnore") {
			continue
		}

		mounts = append(mounts, decodeMountPoints(fsProps)...)
	}
	return normalize(mounts)
}

func boolProp(props map[string]dbus.Variant, name string) bool {
	v, ok := props[name]
	if !ok {
		return false
	}
	b, ok := v.Value().(bool)
	return ok && b
}

// decodeMountPoints turns the aay MountPoints property into strings. Each
// entry is a NUL-terminated byte string.
func decodeMountPoints(props map[string]dbus.Variant) []string {
	v, ok := props["MountPoints"]
	if !ok {
		return nil
	}
	raw, ok := v.Value().([][]byte)
	if !ok {
		return nil
	}

	result := make([]string, 0, len(raw))
	for _, mp := range raw {
		path := strings.TrimRight(string(mp), "\x00")
		if path != "" {
			result = append(result, path)
		}
	}
	return result
}
