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
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/methods"
	apimiddleware "github.com/ZaparooProject/zaparoo-backup/pkg/api/middleware"
	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-backup/pkg/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var defaultAllowedOrigins = []string{"https://*", "http://*", "capacitor://*"}

// NewRouter builds the HTTP surface. The select route has no request timeout
// because it waits for the search, which can take as long as the volume is
// large; status polling is exempt from rate limiting.
func NewRouter(
	cfg *config.Instance,
	surface methods.Surface,
	limiter *apimiddleware.IPRateLimiter,
	ws *melody.Melody,
) http.Handler {
	origins := cfg.AllowedOrigins()
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{},
	}))
	r.Use(apimiddleware.IPFilterMiddleware(apimiddleware.NewIPFilter(cfg.AllowedIPs())))

	r.Get(models.NotificationsPath, func(w http.ResponseWriter, r *http.Request) {
		if err := ws.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})
	r.Get("/jobs/status", methods.HandleStatus(surface))

	r.Group(func(r chi.Router) {
		r.Use(apimiddleware.RateLimit(limiter))

		r.Get("/jobs", methods.HandleSelect(surface))
		r.Post("/jobs", methods.HandleSelect(surface))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(config.APIRequestTimeout))

			r.Get("/mounts", methods.HandleMounts(surface))
			r.Get("/jobs/confirm", methods.HandleConfirm(surface))
			r.Get("/jobs/cancel", methods.HandleCancel(surface))
		})
	})

	return r
}

// newMelody creates the notification websocket hub. New clients get the
// current job status straight away.
func newMelody(surface methods.Surface) *melody.Melody {
	ws := melody.New()
	ws.Upgrader.CheckOrigin = func(*http.Request) bool { return true }

	ws.HandleConnect(func(s *melody.Session) {
		params, err := json.Marshal(surface.PollStatus())
		if err != nil {
			log.Error().Err(err).Msg("marshalling initial status")
			return
		}
		data, err := json.Marshal(models.NotificationObject{
			Method: models.NotificationJobsStatus,
			Params: params,
		})
		if err != nil {
			log.Error().Err(err).Msg("marshalling initial status")
			return
		}
		if err := s.Write(data); err != nil {
			log.Debug().Err(err).Msg("sending initial status")
		}
	})

	// heartbeat for clients that can't send websocket pings
	ws.HandleMessage(func(s *melody.Session, msg []byte) {
		if string(msg) != "ping" {
			return
		}
		if err := s.Write([]byte("pong")); err != nil {
			log.Debug().Err(err).Msg("sending pong")
		}
	})

	return ws
}

func broadcastNotifications(
	ctx context.Context,
	ws *melody.Melody,
	notifications <-chan models.Notification,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-notifications:
			if !ok {
				return
			}

			data, err := json.Marshal(models.NotificationObject{
				Method: notif.Method,
				Params: notif.Params,
			})
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification")
				continue
			}

			if err := ws.Broadcast(data); err != nil && !errors.Is(err, melody.ErrClosed) {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

// Server is a running HTTP surface.
type Server struct {
	srv    *http.Server
	ws     *melody.Melody
	cancel context.CancelFunc
	addr   net.Addr
	wg     sync.WaitGroup
}

// Start listens on the configured address and serves until Shutdown or ctx
// is cancelled. It returns once the listener is open.
func Start(
	ctx context.Context,
	cfg *config.Instance,
	surface methods.Surface,
	notifications <-chan models.Notification,
) (*Server, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.APIListen())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.APIListen(), err)
	}

	ctx, cancel := context.WithCancel(ctx)

	limiter := apimiddleware.NewIPRateLimiter(nil)
	limiter.StartCleanup(ctx)

	ws := newMelody(surface)

	s := &Server{
		srv: &http.Server{
			Handler:           NewRouter(cfg, surface, limiter, ws),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		ws:     ws,
		cancel: cancel,
		addr:   ln.Addr(),
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		broadcastNotifications(ctx, ws, notifications)
	}()
	go func() {
		defer s.wg.Done()
		err := s.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	log.Info().Str("addr", s.addr.String()).Msg("api server listening")
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown closes websocket sessions, stops accepting requests and waits for
// in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	if err := s.ws.Close(); err != nil && !errors.Is(err, melody.ErrClosed) {
		log.Warn().Err(err).Msg("closing websocket sessions")
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
