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

package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startedPublisher(t *testing.T, client *mockMQTTClient, filter []string) *MQTTPublisher {
	t.Helper()
	p := NewMQTTPublisher("localhost:1883", "zapbackup/", filter)
	p.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }
	require.NoError(t, p.Start())
	return p
}

func TestBrokerURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tcp://localhost:1883", brokerURL("localhost:1883"))
	assert.Equal(t, "ssl://broker:8883", brokerURL("ssl://broker:8883"))
}

func TestTopic(t *testing.T) {
	t.Parallel()

	p := NewMQTTPublisher("localhost:1883", "zapbackup/", nil)
	assert.Equal(t, "zapbackup/jobs/status", p.Topic(models.NotificationJobsStatus))
	assert.Equal(t, "zapbackup/mounts/added", p.Topic(models.NotificationMountsAdded))
}

func TestStart_ConnectError(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	client.connectError = errors.New("connection refused")

	p := NewMQTTPublisher("localhost:1883", "zapbackup", nil)
	p.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }

	err := p.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPublish_WrapsNotification(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := startedPublisher(t, client, nil)

	require.NoError(t, p.Publish(models.Notification{
		Method: models.NotificationMountsAdded,
		Params: json.RawMessage(`{"path":"/media/STICK"}`),
	}))
	require.NoError(t, p.Publish(models.Notification{
		Method: models.NotificationJobsStatus,
		Params: json.RawMessage(`{"status":"Copying"}`),
	}))

	msgs := client.published()
	require.Len(t, msgs, 2)

	assert.Equal(t, "zapbackup/mounts/added", msgs[0].topic)
	assert.False(t, msgs[0].retained)
	assert.JSONEq(t,
		`{"method":"mounts.added","params":{"path":"/media/STICK"}}`,
		string(msgs[0].payload.([]byte)))

	assert.Equal(t, "zapbackup/jobs/status", msgs[1].topic)
	assert.True(t, msgs[1].retained, "job status is retained")
}

func TestPublish_Filter(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := startedPublisher(t, client, []string{models.NotificationJobsStatus})

	require.NoError(t, p.Publish(models.Notification{Method: models.NotificationMountsAdded}))
	require.NoError(t, p.Publish(models.Notification{Method: models.NotificationJobsStatus}))

	msgs := client.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "zapbackup/jobs/status", msgs[0].topic)
}

func TestPublish_Errors(t *testing.T) {
	t.Parallel()

	notStarted := NewMQTTPublisher("localhost:1883", "zapbackup", nil)
	require.Error(t, notStarted.Publish(models.Notification{Method: models.NotificationJobsStatus}))

	failing := newMockMQTTClient()
	failing.publishError = errors.New("broker gone")
	p := startedPublisher(t, failing, nil)
	err := p.Publish(models.Notification{Method: models.NotificationJobsStatus})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")

	stalled := newMockMQTTClient()
	stalled.publishStalls = true
	p = startedPublisher(t, stalled, nil)
	require.ErrorIs(t, p.Publish(models.Notification{Method: models.NotificationJobsStatus}), ErrPublishTimeout)
}

func TestStop_Disconnects(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := startedPublisher(t, client, nil)

	p.Stop()
	assert.False(t, client.IsConnected())
	assert.Equal(t, 1, client.disconnectCall)

	// already disconnected
	p.Stop()
	assert.Equal(t, 1, client.disconnectCall)

	NewMQTTPublisher("localhost:1883", "zapbackup", nil).Stop()
}

func TestForward_DrainsUntilClosed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	client := newMockMQTTClient()
	p := startedPublisher(t, client, nil)

	ch := make(chan models.Notification)
	done := make(chan struct{})
	go func() {
		Forward(context.Background(), []*MQTTPublisher{p}, ch)
		close(done)
	}()

	ch <- models.Notification{Method: models.NotificationMountsAdded}
	ch <- models.Notification{Method: models.NotificationMountsRemoved}
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not return after channel close")
	}
	assert.Equal(t, 2, client.getPublishedCount())
}

func TestForward_StopsOnContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan models.Notification)
	done := make(chan struct{})
	go func() {
		Forward(ctx, nil, ch)
		close(done)
	}()

	// no publishers: still drained
	ch <- models.Notification{Method: models.NotificationJobsStatus}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not return after cancel")
	}
}
