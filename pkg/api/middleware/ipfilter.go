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

package middleware

import (
	"net/http"
	"net/netip"

	"github.com/ZaparooProject/zaparoo-backup/pkg/api/models"
	"github.com/rs/zerolog/log"
)

// ParseRemoteAddr extracts the client address from a RemoteAddr value, with
// or without a port. IPv4-mapped IPv6 addresses are unmapped.
func ParseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(remoteAddr)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// IPFilter is an allowlist of addresses and networks. An empty list allows
// everyone.
type IPFilter struct {
	prefixes []netip.Prefix
	open     bool
}

func NewIPFilter(allowed []string) *IPFilter {
	f := &IPFilter{open: len(allowed) == 0}

	for _, entry := range allowed {
		// people paste host:port from the browser
		if ap, err := netip.ParseAddrPort(entry); err == nil {
			f.prefixes = append(f.prefixes, netip.PrefixFrom(ap.Addr().Unmap(), ap.Addr().Unmap().BitLen()))
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			f.prefixes = append(f.prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			f.prefixes = append(f.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		log.Warn().Str("ip", entry).Msg("invalid IP or CIDR in allowed_ips, skipping")
	}

	return f
}

func (f *IPFilter) IsAllowed(remoteAddr string) bool {
	if f.open {
		return true
	}

	addr, ok := ParseRemoteAddr(remoteAddr)
	if !ok {
		log.Warn().Str("addr", remoteAddr).Msg("failed to parse IP address")
		return false
	}

	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IPFilterMiddleware rejects requests from addresses outside the allowlist
// with 403.
func IPFilterMiddleware(filter *IPFilter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !filter.IsAllowed(r.RemoteAddr) {
				log.Debug().
					Str("addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Msg("request from blocked IP")
				writeError(w, http.StatusForbidden, models.ErrorForbidden, "address not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
