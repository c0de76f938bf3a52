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

// Package backup finds the files on a source volume that aren't already in
// the backup tree and copies them into a new timestamped directory, with an
// operator confirmation step between the two.
package backup

// Status is the state of a Job.
type Status int32

const (
	Idle Status = iota
	Searching
	AwaitingConfirmation
	Copying
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Searching:
		return "Searching"
	case AwaitingConfirmation:
		return "AwaitingConfirmation"
	case Copying:
		return "Copying"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == Done || s == Failed
}
