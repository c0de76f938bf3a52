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

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/rs/zerolog/log"
)

// send queues a notification without blocking. Job progress is published
// from the copy loop, which must never wait on a slow consumer.
func send(ns chan<- models.Notification, method string, payload any) {
	var params json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("failed to marshal notification params")
			return
		}
		params = data
	}

	select {
	case ns <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification queue full, dropping notification")
	}
}

func MountsAdded(ns chan<- models.Notification, path string) {
	send(ns, models.NotificationMountsAdded, models.MountParams{Path: path})
}

func MountsRemoved(ns chan<- models.Notification, path string) {
	send(ns, models.NotificationMountsRemoved, models.MountParams{Path: path})
}

func JobsStatus(ns chan<- models.Notification, payload models.StatusResponse) {
	send(ns, models.NotificationJobsStatus, payload)
}
