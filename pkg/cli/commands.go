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

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/client"
	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-backup/pkg/backup"
)

var statusPollInterval = 500 * time.Millisecond

func PrintStatus(ctx context.Context, w io.Writer, c *client.Client) error {
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	_, _ = fmt.Fprintln(w, st.Label)
	if st.TotalFiles > 0 {
		_, _ = fmt.Fprintf(w, "%d/%d files", st.CopiedCount, st.TotalFiles)
		if st.CurrentFile != "" {
			_, _ = fmt.Fprintf(w, " (%s)", st.CurrentFile)
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

func PrintMounts(ctx context.Context, w io.Writer, c *client.Client) error {
	mounts, err := c.Mounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}
	for _, m := range mounts {
		_, _ = fmt.Fprintln(w, m)
	}
	return nil
}

// Watch prints each notification as "method params" until ctx is done.
func Watch(ctx context.Context, w io.Writer, c *client.Client) error {
	err := c.Watch(ctx, func(n models.NotificationObject) error {
		_, err := fmt.Fprintf(w, "%s %s\n", n.Method, n.Params)
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func confirmed(prompt io.Reader, w io.Writer, total int) bool {
	_, _ = fmt.Fprintf(w, "Copy %d files? [y/N] ", total)
	line, err := bufio.NewReader(prompt).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// Backup runs a whole job on mount: search, confirm (asking on prompt unless
// it's nil), then follow progress until the job finishes.
func Backup(ctx context.Context, w io.Writer, prompt io.Reader, c *client.Client, mount string) error {
	total, err := c.Select(ctx, mount)
	if err != nil {
		return fmt.Errorf("failed to start backup: %w", err)
	}
	if total == 0 {
		_, _ = fmt.Fprintln(w, "Nothing to back up")
		return nil
	}
	_, _ = fmt.Fprintf(w, "Found %d new files on %s\n", total, mount)

	if prompt != nil && !confirmed(prompt, w, total) {
		if err := c.Cancel(ctx); err != nil {
			return fmt.Errorf("failed to cancel backup: %w", err)
		}
		_, _ = fmt.Fprintln(w, "Cancelled")
		return nil
	}

	if err := c.Confirm(ctx); err != nil {
		return fmt.Errorf("failed to confirm backup: %w", err)
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	last := -1
	for {
		st, err := c.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		if st.CopiedCount != last {
			last = st.CopiedCount
			_, _ = fmt.Fprintf(w, "%d/%d %s\n", st.CopiedCount, st.TotalFiles, st.CurrentFile)
		}

		switch st.Status {
		case backup.Done.String():
			_, _ = fmt.Fprintf(w, "Backed up %d files\n", st.CopiedCount)
			return nil
		case backup.Failed.String():
			return fmt.Errorf("backup failed after %d of %d files: %s",
				st.CopiedCount, st.TotalFiles, st.FailureReason)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
