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

// Package models holds the JSON shapes of the HTTP surface and the
// notification stream.
package models

import "encoding/json"

// NotificationsPath is the websocket endpoint streaming notifications.
const NotificationsPath = "/api/notifications"

const (
	NotificationMountsAdded   = "mounts.added"
	NotificationMountsRemoved = "mounts.removed"
	NotificationJobsStatus    = "jobs.status"
)

// Error kinds returned in ErrorResponse.Error.
const (
	ErrorNoMountSelected         = "NoMountSelected"
	ErrorUnknownMount            = "UnknownMount"
	ErrorAlreadyRunning          = "AlreadyRunning"
	ErrorNoActiveJob             = "NoActiveJob"
	ErrorNotAwaitingConfirmation = "NotAwaitingConfirmation"
	ErrorSearchFailure           = "SearchFailure"
	ErrorInvalidParams           = "InvalidParams"
	ErrorInternal                = "Internal"
	ErrorRateLimited             = "RateLimited"
	ErrorForbidden               = "Forbidden"
)

// Notification is an event queued for broadcast. Params is already encoded.
type Notification struct {
	Method string
	Params json.RawMessage
}

// NotificationObject is what websocket clients receive.
type NotificationObject struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type MountsResponse struct {
	Mounts []string `json:"mounts"`
}

type MountParams struct {
	Path string `json:"path" validate:"omitempty,mountpath"`
}

type SelectResponse struct {
	TotalFiles int `json:"totalFiles"`
}

type StatusResponse struct {
	Status        string `json:"status"`
	Label         string `json:"label"`
	CurrentFile   string `json:"currentFile"`
	FailureReason string `json:"failureReason,omitempty"`
	CopiedCount   int    `json:"copiedCount"`
	TotalFiles    int    `json:"totalFiles"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
