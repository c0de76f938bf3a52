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

// Package service wires the backup service together: volume listing, the
// mount monitor, the job registry and control surface, the HTTP surface,
// notification publishers and mDNS discovery.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api"
	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-backup/pkg/api/notifications"
	"github.com/ZaparooProject/zaparoo-backup/pkg/backup"
	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/ZaparooProject/zaparoo-backup/pkg/mounts"
	"github.com/ZaparooProject/zaparoo-backup/pkg/service/broker"
	"github.com/ZaparooProject/zaparoo-backup/pkg/service/control"
	"github.com/ZaparooProject/zaparoo-backup/pkg/service/discovery"
	"github.com/ZaparooProject/zaparoo-backup/pkg/service/publishers"
	"github.com/ZaparooProject/zaparoo-backup/pkg/volumes"
	"github.com/rs/zerolog/log"
)

const (
	notificationQueueSize = 100
	subscriberBufferSize  = 100
)

type options struct {
	lister  volumes.Lister
	jobOpts []backup.Option
}

type Option func(*options)

// WithLister overrides the lister picked from config.
func WithLister(l volumes.Lister) Option {
	return func(o *options) {
		o.lister = l
	}
}

// WithJobOptions is applied to every backup job, before the status
// observer.
func WithJobOptions(opts ...backup.Option) Option {
	return func(o *options) {
		o.jobOpts = append(o.jobOpts, opts...)
	}
}

// Service is a running backup service.
type Service struct {
	cancel     context.CancelFunc
	broker     *broker.Broker
	monitor    *mounts.Monitor
	registry   *backup.Registry
	server     *api.Server
	discovery  *discovery.Service
	publishers []*publishers.MQTTPublisher
	fanOutDone chan struct{}
}

func setupEnvironment(cfg *config.Instance) error {
	root := cfg.BackupRootDir()
	log.Info().Str("path", root).Msg("using backup root")
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("failed to create backup root %s: %w", root, err)
	}
	return nil
}

func startPublishers(cfg *config.Instance) []*publishers.MQTTPublisher {
	var active []*publishers.MQTTPublisher
	for _, pubCfg := range cfg.MQTTPublishers() {
		log.Info().Str("broker", pubCfg.Broker).Str("topic", pubCfg.Topic).Msg("starting MQTT publisher")
		pub := publishers.NewMQTTPublisher(pubCfg.Broker, pubCfg.Topic, pubCfg.Filter)
		if err := pub.Start(); err != nil {
			log.Error().Err(err).Str("broker", pubCfg.Broker).Msg("failed to start MQTT publisher")
			continue
		}
		active = append(active, pub)
	}
	return active
}

func Start(cfg *config.Instance, opts ...Option) (*Service, error) {
	log.Info().Msgf("version: %s", config.AppVersion)

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if err := setupEnvironment(cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{cancel: cancel}

	lister := o.lister
	if lister == nil {
		var err error
		lister, err = volumes.New(ctx, cfg.Lister(), cfg.MediaPrefixes())
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create volume lister: %w", err)
		}
	}

	ns := make(chan models.Notification, notificationQueueSize)
	s.broker = broker.NewBroker(ctx, ns)
	s.broker.Start()

	monitorOpts := []mounts.Option{
		mounts.WithPollInterval(cfg.PollInterval()),
		mounts.WithCallbacks(mounts.Callbacks{
			OnAdded: func(path string) {
				log.Info().Str("path", path).Msg("volume attached")
				notifications.MountsAdded(ns, path)
			},
			OnRemoved: func(path string) {
				log.Info().Str("path", path).Msg("volume detached")
				notifications.MountsRemoved(ns, path)
			},
		}),
	}
	if cfg.WatchMounts() {
		monitorOpts = append(monitorOpts, mounts.WithWatchDirs(cfg.WatchDirs()))
	}
	s.monitor = mounts.New(lister, monitorOpts...)
	s.monitor.Start()

	s.registry = backup.NewRegistry()
	jobOpts := make([]backup.Option, 0, len(o.jobOpts)+1)
	jobOpts = append(jobOpts, o.jobOpts...)
	jobOpts = append(jobOpts, backup.WithObserver(func(p backup.Progress) {
		notifications.JobsStatus(ns, control.StatusResponse(&p))
	}))
	surface := control.New(s.monitor, s.registry, cfg, jobOpts...)

	log.Info().Msg("starting API service")
	apiNotifications, _ := s.broker.Subscribe(subscriberBufferSize)
	server, err := api.Start(ctx, cfg, surface, apiNotifications)
	if err != nil {
		s.monitor.Stop()
		cancel()
		<-s.broker.Done()
		return nil, fmt.Errorf("failed to start API service: %w", err)
	}
	s.server = server

	log.Info().Msg("starting publishers")
	s.publishers = startPublishers(cfg)
	publisherNotifications, _ := s.broker.Subscribe(subscriberBufferSize)
	s.fanOutDone = make(chan struct{})
	go func() {
		defer close(s.fanOutDone)
		publishers.Forward(ctx, s.publishers, publisherNotifications)
	}()

	log.Info().Msg("starting mDNS discovery service")
	port := cfg.APIPort()
	if addr, ok := server.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	s.discovery = discovery.New(cfg, port)
	if err := s.discovery.Start(); err != nil {
		log.Error().Err(err).Msg("mDNS discovery failed to start, continuing without it")
	}

	log.Info().Msg("service started")
	return s, nil
}

// Addr is the address the HTTP surface is listening on.
func (s *Service) Addr() net.Addr {
	return s.server.Addr()
}

// Stop shuts everything down in reverse start order. A job that is copying
// keeps its goroutine until the copy finishes; one waiting for confirmation
// is cancelled.
func (s *Service) Stop() error {
	log.Info().Msg("stopping service")

	s.discovery.Stop()

	var errs []error
	if err := s.server.Shutdown(context.Background()); err != nil {
		errs = append(errs, err)
	}

	s.monitor.Stop()

	if job := s.registry.Current(); job != nil {
		if err := job.Cancel(); err == nil {
			log.Info().Str("job", job.ID()).Msg("cancelled pending job on shutdown")
		}
	}

	s.cancel()
	<-s.fanOutDone
	for _, pub := range s.publishers {
		pub.Stop()
	}
	<-s.broker.Done()

	log.Info().Msg("service stopped")
	return errors.Join(errs...)
}
