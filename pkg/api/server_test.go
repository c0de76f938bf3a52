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

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apimiddleware "github.com/ZaparooProject/zaparoo-backup/pkg/api/middleware"
	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-backup/pkg/backup"
	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSurface struct {
	status models.StatusResponse
	mounts []string
}

func (s *stubSurface) ListMounts() []string { return s.mounts }

func (*stubSurface) SelectSource(_ context.Context, mountPath string) (int, error) {
	if mountPath == "/media/BUSY" {
		return 0, backup.ErrAlreadyRunning
	}
	return 5, nil
}

func (*stubSurface) Confirm() error { return nil }

func (*stubSurface) Cancel() error { return backup.ErrNoActiveJob }

func (s *stubSurface) PollStatus() models.StatusResponse { return s.status }

func newTestConfig(t *testing.T, toml string) *config.Instance {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.CfgFile)
	require.NoError(t, os.WriteFile(path, []byte("config_schema = 1\n"+toml), 0o600))
	cfg, err := config.NewConfigFromFile(path, config.BaseDefaults)
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Instance, surface *stubSurface) *httptest.Server {
	t.Helper()
	limiter := apimiddleware.NewIPRateLimiter(clockwork.NewFakeClock())
	ts := httptest.NewServer(NewRouter(cfg, surface, limiter, newMelody(surface)))
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body json.RawMessage
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	return resp, body
}

func TestRouter_Routes(t *testing.T) {
	t.Parallel()

	surface := &stubSurface{
		mounts: []string{"/media/STICK"},
		status: models.StatusResponse{Status: "Ready", Label: "Ready"},
	}
	ts := newTestServer(t, newTestConfig(t, ""), surface)

	resp, body := get(t, ts.URL+"/mounts")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"mounts":["/media/STICK"]}`, string(body))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-cache")

	resp, body = get(t, ts.URL+"/jobs?mount=/media/STICK")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"totalFiles":5}`, string(body))

	resp, body = get(t, ts.URL+"/jobs?mount=/media/BUSY")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), models.ErrorAlreadyRunning)

	resp, _ = get(t, ts.URL+"/jobs/confirm")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = get(t, ts.URL+"/jobs/cancel")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), models.ErrorNoActiveJob)

	resp, body = get(t, ts.URL+"/jobs/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"Ready","label":"Ready","currentFile":"","copiedCount":0,"totalFiles":0}`,
		string(body))

	resp, _ = get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_StatusNotRateLimited(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newTestConfig(t, ""), &stubSurface{})

	// the fake clock never advances, so the bucket never refills
	for range apimiddleware.BurstSize {
		resp, _ := get(t, ts.URL+"/mounts")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := get(t, ts.URL+"/mounts")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), models.ErrorRateLimited)

	resp, _ = get(t, ts.URL+"/jobs?mount=/media/STICK")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	for range 50 {
		resp, _ = get(t, ts.URL+"/jobs/status")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestRouter_IPFilter(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, "[service]\nallowed_ips = [\"10.1.2.3\"]\n")
	ts := newTestServer(t, cfg, &stubSurface{})

	resp, body := get(t, ts.URL+"/jobs/status")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(body), models.ErrorForbidden)
}

func TestRouter_CORS(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, "[service]\nallowed_origins = [\"http://kiosk.local\"]\n")
	ts := newTestServer(t, cfg, &stubSurface{})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/jobs/status", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://kiosk.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "http://kiosk.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://elsewhere.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func readNotification(t *testing.T, conn *websocket.Conn) models.NotificationObject {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var notif models.NotificationObject
	require.NoError(t, json.Unmarshal(msg, &notif))
	return notif
}

func TestStart_StreamsNotifications(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, "[service]\napi_listen = \"127.0.0.1:0\"\n")
	surface := &stubSurface{status: models.StatusResponse{Status: "Copying", Label: "Backing up"}}
	ns := make(chan models.Notification, 1)

	srv, err := Start(context.Background(), cfg, surface, ns)
	require.NoError(t, err)

	url := "ws://" + srv.Addr().String() + models.NotificationsPath
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	first := readNotification(t, conn)
	assert.Equal(t, models.NotificationJobsStatus, first.Method)
	assert.JSONEq(t,
		`{"status":"Copying","label":"Backing up","currentFile":"","copiedCount":0,"totalFiles":0}`,
		string(first.Params))

	ns <- models.Notification{
		Method: models.NotificationMountsAdded,
		Params: json.RawMessage(`{"path":"/media/STICK"}`),
	}
	added := readNotification(t, conn)
	assert.Equal(t, models.NotificationMountsAdded, added.Method)
	assert.JSONEq(t, `{"path":"/media/STICK"}`, string(added.Params))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, pong, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(pong))

	require.NoError(t, srv.Shutdown(context.Background()))

	_, _, err = conn.ReadMessage()
	require.Error(t, err, "sessions are closed on shutdown")
}

func TestStart_ListenError(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, "[service]\napi_listen = \"256.0.0.1:1\"\n")
	_, err := Start(context.Background(), cfg, &stubSurface{}, make(chan models.Notification))
	require.Error(t, err)
}
