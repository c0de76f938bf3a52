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
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning          = errors.New("a backup job is already running")
	ErrNoActiveJob             = errors.New("no active backup job")
	ErrNotAwaitingConfirmation = errors.New("backup job is not awaiting confirmation")
)

// SearchError is recorded when the source or destination tree can't be read
// while looking for missing files.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search failed: %v", e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// CopyError is recorded when a single file fails to copy. Files copied
// before it are left in place.
type CopyError struct {
	Err  error
	Path string
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("failed to copy %s: %v", e.Path, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}
