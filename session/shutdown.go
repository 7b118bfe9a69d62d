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

package session

import (
	"context"
	"time"

	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/log"
)

// Killer is a process handle that can be terminated.
type Killer interface {
	Kill() error
}

// ShutdownController releases the browser once outstanding requests drained.
type ShutdownController struct {
	keepAlive bool
	pending   func() int
	process   Killer
	logger    *log.Logger

	Interval time.Duration
	MaxWait  time.Duration
}

// NewShutdownController returns a controller that, unless keepAlive is set,
// waits for pending to reach zero and then kills process. Either of pending
// and process may be nil.
func NewShutdownController(keepAlive bool, pending func() int, process Killer, logger *log.Logger) *ShutdownController {
	return &ShutdownController{
		keepAlive: keepAlive,
		pending:   pending,
		process:   process,
		logger:    logger,
		Interval:  common.ShutdownPollInterval,
		MaxWait:   common.ShutdownMaxWait,
	}
}

// Shutdown drains and releases the browser. Kill failures are ignored since
// the browser may be gone already.
func (s *ShutdownController) Shutdown(ctx context.Context) error {
	if s.keepAlive {
		s.logger.Debugf("shutdown", "keeping browser alive")
		return nil
	}

	deadline := time.Now().Add(s.MaxWait)
	for s.pending != nil {
		n := s.pending()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			s.logger.Warnf("shutdown", "giving up on %d pending requests after %s", n, s.MaxWait)
			break
		}
		s.logger.Tracef("shutdown", "waiting on %d pending requests", n)

		t := time.NewTimer(s.Interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err() //nolint:wrapcheck
		}
	}

	if s.process == nil {
		return nil
	}
	if err := s.process.Kill(); err != nil {
		s.logger.Debugf("shutdown", "killing browser: %v", err)
	}

	return nil
}
