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

package notifications

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_DoesNotBlockOnFullQueue(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification)

	done := make(chan struct{})
	go func() {
		MountsAdded(ns, "/media/usb")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("send blocked on a full notification queue")
	}
}

func TestMountsAdded(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	MountsAdded(ns, "/media/pi/STICK")

	notif := <-ns
	assert.Equal(t, models.NotificationMountsAdded, notif.Method)

	var params models.MountParams
	require.NoError(t, json.Unmarshal(notif.Params, &params))
	assert.Equal(t, "/media/pi/STICK", params.Path)
}

func TestMountsRemoved(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	MountsRemoved(ns, "/media/pi/STICK")

	notif := <-ns
	assert.Equal(t, models.NotificationMountsRemoved, notif.Method)
	assert.JSONEq(t, `{"path":"/media/pi/STICK"}`, string(notif.Params))
}

func TestJobsStatus(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	JobsStatus(ns, models.StatusResponse{
		Status:      "Copying",
		Label:       "Backing up",
		CurrentFile: "b.txt",
		CopiedCount: 1,
		TotalFiles:  3,
	})

	notif := <-ns
	assert.Equal(t, models.NotificationJobsStatus, notif.Method)
	assert.JSONEq(t,
		`{"status":"Copying","label":"Backing up","currentFile":"b.txt","copiedCount":1,"totalFiles":3}`,
		string(notif.Params))
}

func TestSend_NilPayload(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	send(ns, "test.event", nil)

	notif := <-ns
	assert.Equal(t, "test.event", notif.Method)
	assert.Nil(t, notif.Params)
}

func TestSend_UnmarshalablePayloadDropped(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 1)
	send(ns, "test.event", make(chan int))

	assert.Empty(t, ns)
}
