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
	"sync/atomic"
)

type decision int32

const (
	decisionNone decision = iota
	decisionConfirm
	decisionCancel
)

// gate is a one-shot wake-up for the job worker. The first trip wins and
// later trips are rejected; it can't be re-armed.
type gate struct {
	ch       chan struct{}
	decision atomic.Int32
	tripped  atomic.Bool
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) trip(d decision) bool {
	if !g.tripped.CompareAndSwap(false, true) {
		return false
	}
	g.decision.Store(int32(d))
	close(g.ch)
	return true
}

func (g *gate) wait() decision {
	<-g.ch
	return decision(g.decision.Load())
}
