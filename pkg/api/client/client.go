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

// Package client talks to a running backup service over its HTTP surface.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrStopWatching = errors.New("stop watching")

// APIError is an error response from the service.
type APIError struct {
	Kind       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

type Client struct {
	http *http.Client
	host string
}

// New creates a client for the service at host ("addr:port").
func New(host string) *Client {
	return &Client{
		host: host,
		http: &http.Client{Timeout: config.APIRequestTimeout},
	}
}

// NewLocal creates a client for the service on this machine.
func NewLocal(cfg *config.Instance) *Client {
	return New("localhost:" + strconv.Itoa(cfg.APIPort()))
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) error {
	u := url.URL{Scheme: "http", Host: c.host, Path: path, RawQuery: query.Encode()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing response body")
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body models.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Kind = body.Error
			apiErr.Message = body.Message
		} else {
			apiErr.Kind = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) Mounts(ctx context.Context) ([]string, error) {
	var resp models.MountsResponse
	if err := c.get(ctx, "/mounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Mounts, nil
}

// Select starts a backup of mount and returns how many files it would copy.
func (c *Client) Select(ctx context.Context, mount string) (int, error) {
	var resp models.SelectResponse
	if err := c.get(ctx, "/jobs", url.Values{"mount": {mount}}, &resp); err != nil {
		return 0, err
	}
	return resp.TotalFiles, nil
}

func (c *Client) Confirm(ctx context.Context) error {
	return c.get(ctx, "/jobs/confirm", nil, nil)
}

func (c *Client) Cancel(ctx context.Context) error {
	return c.get(ctx, "/jobs/cancel", nil, nil)
}

func (c *Client) Status(ctx context.Context) (models.StatusResponse, error) {
	var resp models.StatusResponse
	err := c.get(ctx, "/jobs/status", nil, &resp)
	return resp, err
}

// Watch streams notifications to fn until ctx is done, the connection drops
// or fn returns an error. Returning ErrStopWatching ends the watch cleanly.
func (c *Client) Watch(ctx context.Context, fn func(models.NotificationObject) error) error {
	u := url.URL{Scheme: "ws", Host: c.host, Path: models.NotificationsPath}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("error closing websocket")
		}
	}()

	// unblock ReadMessage on cancellation
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading notification: %w", err)
		}

		var notif models.NotificationObject
		if err := json.Unmarshal(msg, &notif); err != nil || notif.Method == "" {
			continue
		}

		if err := fn(notif); err != nil {
			if errors.Is(err, ErrStopWatching) {
				return nil
			}
			return err
		}
	}
}
