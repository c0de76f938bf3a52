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

package methods

import (
	"io"
	"net/http"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-backup/pkg/api/validation"
	"github.com/rs/zerolog/log"
)

// maxBodySize caps POST /jobs bodies; a mount path is all they carry.
const maxBodySize = 4096

func HandleMounts(s Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		log.Debug().Msg("received mounts request")
		mounts := s.ListMounts()
		if mounts == nil {
			mounts = []string{}
		}
		writeJSON(w, http.StatusOK, models.MountsResponse{Mounts: mounts})
	}
}

// mountParams reads the mount to back up from the "mount" query parameter,
// or from a JSON body on POST.
func mountParams(r *http.Request) (models.MountParams, error) {
	var params models.MountParams
	if r.Method != http.MethodPost {
		params.Path = r.URL.Query().Get("mount")
		return params, validation.DefaultValidator.Validate(&params)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return params, validation.ErrInvalidParams
	}
	if len(body) == 0 {
		// same as an empty query: no mount selected
		return params, nil
	}
	return params, validation.ValidateAndUnmarshal(body, &params)
}

// HandleSelect starts a job on the requested mount and responds once the
// search has finished.
func HandleSelect(s Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := mountParams(r)
		if err != nil {
			writeError(w, err)
			return
		}

		log.Info().Str("mount", params.Path).Msg("received backup request")

		total, err := s.SelectSource(r.Context(), params.Path)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.SelectResponse{TotalFiles: total})
	}
}

func HandleConfirm(s Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		log.Info().Msg("received confirm request")
		if err := s.Confirm(); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleCancel(s Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		log.Info().Msg("received cancel request")
		if err := s.Cancel(); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleStatus is polled frequently, so it doesn't log.
func HandleStatus(s Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.PollStatus())
	}
}
