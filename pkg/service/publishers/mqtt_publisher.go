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

// Package publishers forwards service notifications to external brokers.
package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	disconnectWait = 250
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTPublisher publishes notifications to one MQTT broker. Each method gets
// its own subtopic under the configured topic, e.g. "zapbackup/jobs/status".
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	broker    string
	topic     string
	filter    []string
}

// NewMQTTPublisher creates a publisher. An empty filter publishes every
// notification method.
func NewMQTTPublisher(broker, topic string, filter []string) *MQTTPublisher {
	return &MQTTPublisher{
		broker:    broker,
		topic:     strings.TrimSuffix(topic, "/"),
		filter:    filter,
		newClient: mqtt.NewClient,
	}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Start connects to the broker. The client keeps reconnecting in the
// background after a lost connection.
func (p *MQTTPublisher) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(p.broker))
	opts.SetClientID("zapbackup-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Str("broker", p.broker).Msg("mqtt publisher connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", p.broker).Msg("mqtt publisher connection lost")
	}

	p.client = p.newClient(opts)

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Info().Str("broker", p.broker).Str("topic", p.topic).Msg("mqtt publisher started")
	return nil
}

func (p *MQTTPublisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		log.Debug().Str("broker", p.broker).Msg("mqtt publisher disconnecting")
		p.client.Disconnect(disconnectWait)
	}
}

// Topic is where notifications of the given method are published.
func (p *MQTTPublisher) Topic(method string) string {
	return p.topic + "/" + strings.ReplaceAll(method, ".", "/")
}

// Publish sends one notification. Filtered methods are skipped without
// error. Job status is retained so a new subscriber sees the latest state.
func (p *MQTTPublisher) Publish(notif models.Notification) error {
	if !p.matchesFilter(notif.Method) {
		return nil
	}
	if p.client == nil {
		return errors.New("mqtt publisher not started")
	}

	payload, err := json.Marshal(models.NotificationObject{
		Method: notif.Method,
		Params: notif.Params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	retained := notif.Method == models.NotificationJobsStatus
	token := p.client.Publish(p.Topic(notif.Method), 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", notif.Method, err)
	}

	log.Debug().Str("method", notif.Method).Msg("mqtt notification published")
	return nil
}

func (p *MQTTPublisher) matchesFilter(method string) bool {
	return len(p.filter) == 0 || slices.Contains(p.filter, method)
}

// Forward drains notifications into every publisher until ctx is done or
// the channel closes. The channel is drained even with no publishers so its
// sender never blocks.
func Forward(ctx context.Context, pubs []*MQTTPublisher, notifications <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-notifications:
			if !ok {
				return
			}
			for _, pub := range pubs {
				if err := pub.Publish(notif); err != nil {
					log.Warn().Err(err).Str("method", notif.Method).Msg("failed to publish notification")
				}
			}
		}
	}
}
