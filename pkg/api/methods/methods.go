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

// Package methods holds the HTTP handlers of the backup control surface.
package methods

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-backup/pkg/api/validation"
	"github.com/ZaparooProject/zaparoo-backup/pkg/backup"
	"github.com/ZaparooProject/zaparoo-backup/pkg/service/control"
	"github.com/rs/zerolog/log"
)

// Surface is the control surface the handlers drive.
type Surface interface {
	ListMounts() []string
	SelectSource(ctx context.Context, mountPath string) (int, error)
	Confirm() error
	Cancel() error
	PollStatus() models.StatusResponse
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// errorStatus maps a surface error to its HTTP status and error kind.
func errorStatus(err error) (int, string) {
	var searchErr *backup.SearchError
	var validationErr *validation.Error
	switch {
	case errors.Is(err, control.ErrNoMountSelected):
		return http.StatusBadRequest, models.ErrorNoMountSelected
	case errors.Is(err, validation.ErrInvalidParams),
		errors.As(err, &validationErr):
		return http.StatusBadRequest, models.ErrorInvalidParams
	case errors.Is(err, control.ErrUnknownMount):
		return http.StatusNotFound, models.ErrorUnknownMount
	case errors.Is(err, backup.ErrNoActiveJob):
		return http.StatusNotFound, models.ErrorNoActiveJob
	case errors.Is(err, backup.ErrAlreadyRunning):
		return http.StatusConflict, models.ErrorAlreadyRunning
	case errors.Is(err, backup.ErrNotAwaitingConfirmation):
		return http.StatusConflict, models.ErrorNotAwaitingConfirmation
	case errors.As(err, &searchErr):
		return http.StatusInternalServerError, models.ErrorSearchFailure
	default:
		return http.StatusInternalServerError, models.ErrorInternal
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", kind).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("kind", kind).Msg("request rejected")
	}
	writeJSON(w, status, models.ErrorResponse{
		Error:   kind,
		Message: err.Error(),
	})
}
