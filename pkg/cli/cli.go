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

// Package cli holds the command line flags shared by the service binaries.
// Besides running the service, the binary doubles as a client for an
// already running instance.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/zaparoo-backup/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-backup/pkg/api/client"
	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/ZaparooProject/zaparoo-backup/pkg/helpers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Flags struct {
	Version *bool
	Config  *string
	Host    *string
	Status  *bool
	Mounts  *bool
	Watch   *bool
	Backup  *string
	Yes     *bool
}

func SetupFlags() *Flags {
	return &Flags{
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Config: flag.String(
			"config",
			"",
			"path to config file",
		),
		Host: flag.String(
			"host",
			"",
			"address of a running service (default: this machine)",
		),
		Status: flag.Bool(
			"status",
			false,
			"print the current backup status and exit",
		),
		Mounts: flag.Bool(
			"mounts",
			false,
			"list attached volumes and exit",
		),
		Watch: flag.Bool(
			"watch",
			false,
			"print service notifications until interrupted",
		),
		Backup: flag.String(
			"backup",
			"",
			"back up the volume mounted at this path",
		),
		Yes: flag.Bool(
			"yes",
			false,
			"don't ask before copying with -backup",
		),
	}
}

// Pre parses flags and handles the ones that need no setup. Add any custom
// flags before running this.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("Zaparoo Backup v%s\n", config.AppVersion)
		os.Exit(0)
	}
}

func (f *Flags) client(cfg *config.Instance) *client.Client {
	if *f.Host != "" {
		return client.New(*f.Host)
	}
	return client.NewLocal(cfg)
}

// Post handles the client flags, which talk to a running service and exit.
// It returns if none of them were passed.
func (f *Flags) Post(cfg *config.Instance) {
	var cmd func(ctx context.Context, c *client.Client) error
	switch {
	case *f.Status:
		cmd = func(ctx context.Context, c *client.Client) error {
			return PrintStatus(ctx, os.Stdout, c)
		}
	case *f.Mounts:
		cmd = func(ctx context.Context, c *client.Client) error {
			return PrintMounts(ctx, os.Stdout, c)
		}
	case *f.Watch:
		cmd = func(ctx context.Context, c *client.Client) error {
			return Watch(ctx, os.Stdout, c)
		}
	case *f.Backup != "":
		cmd = func(ctx context.Context, c *client.Client) error {
			var prompt io.Reader = os.Stdin
			if *f.Yes {
				prompt = nil
			}
			return Backup(ctx, os.Stdout, prompt, c, *f.Backup)
		}
	default:
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd(ctx, f.client(cfg))
	stop()
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("client command failed")
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// Setup loads the config and initializes logging and error reporting.
//
//nolint:gocritic // config struct copied for immutability
func Setup(
	cfgPath string,
	defaultConfig config.Values,
	writers []io.Writer,
) *config.Instance {
	err := helpers.InitLogging(helpers.LogDir(), writers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	var cfg *config.Instance
	if cfgPath != "" {
		cfg, err = config.NewConfigFromFile(cfgPath, defaultConfig)
	} else {
		cfg, err = config.NewConfig(helpers.ConfigDir(), defaultConfig)
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := telemetry.Init(
		cfg.ErrorReporting(),
		cfg.SentryDSN(),
		cfg.DeviceID(),
		config.AppVersion,
	); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg
}
