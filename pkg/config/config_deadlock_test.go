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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// APIListen must not re-enter the read lock through APIPort. Run with
// -tags=deadlock to have go-deadlock panic on a regression.
func TestAPIListen_NoRecursiveLock(t *testing.T) {
	t.Parallel()

	cfg := &Instance{}

	done := make(chan struct{})
	go func() {
		_ = cfg.APIListen()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("APIListen() deadlocked")
	}
}

func TestAPIPort_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	cfg := &Instance{}

	done := make(chan struct{})
	for i := range 10 {
		go func() {
			for range 100 {
				if i%2 == 0 {
					cfg.SetAPIPort(9000 + i)
				}
				_ = cfg.APIPort()
				_ = cfg.APIListen()
			}
			done <- struct{}{}
		}()
	}

	for range 10 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent access deadlocked")
		}
	}
}

func TestAPIListen_DefaultPort(t *testing.T) {
	t.Parallel()

	cfg := &Instance{}
	assert.Equal(t, ":8080", cfg.APIListen())
}

func TestAPIListen_CustomPort(t *testing.T) {
	t.Parallel()

	cfg := &Instance{}
	cfg.SetAPIPort(9090)
	assert.Equal(t, ":9090", cfg.APIListen())
}
