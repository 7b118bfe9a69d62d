/*
 *
 * vzi - stream records into a live browser page
 * Copyright (C) 2023 vzi authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package common

import (
	"context"
	"net/url"

	"github.com/liuxd6825/vzi/log"
)

// Target is the page a session drives.
// Fresh is true when the page still has to be navigated to the host page.
type Target struct {
	Page  PageInfo
	Fresh bool
}

// RecyclableFunc reports whether an existing page may be taken over.
type RecyclableFunc func(PageInfo) bool

// TargetResolver picks the page to attach to.
type TargetResolver struct {
	devtools   *DevTools
	recyclable RecyclableFunc
	logger     *log.Logger
}

// NewTargetResolver returns a resolver listing and creating pages through d.
// A nil recyclable means no existing page is ever taken over.
func NewTargetResolver(d *DevTools, recyclable RecyclableFunc, logger *log.Logger) *TargetResolver {
	return &TargetResolver{
		devtools:   d,
		recyclable: recyclable,
		logger:     logger,
	}
}

// Resolve returns the page whose URL fragment is token if there is one,
// otherwise the first recyclable page, otherwise a newly opened one.
func (r *TargetResolver) Resolve(ctx context.Context, token string) (*Target, error) {
	pages, err := r.devtools.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range pages {
		if token != "" && fragment(p.URL) == token {
			r.logger.Debugf("TargetResolver:Resolve", "resuming page %s (%s)", p.ID, p.URL)
			return newTarget(p, false)
		}
	}

	if r.recyclable != nil {
		for _, p := range pages {
			if r.recyclable(p) {
				r.logger.Debugf("TargetResolver:Resolve", "recycling page %s (%s)", p.ID, p.URL)
				return newTarget(p, true)
			}
		}
	}

	p, err := r.devtools.New(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoDebugTarget
	}
	r.logger.Debugf("TargetResolver:Resolve", "opened page %s", p.ID)

	return newTarget(*p, true)
}

func newTarget(p PageInfo, fresh bool) (*Target, error) {
	if p.WebSocketDebuggerURL == "" {
		return nil, ErrNoDebugTarget
	}
	return &Target{Page: p, Fresh: fresh}, nil
}

func fragment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Fragment
}
