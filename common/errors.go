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
	"errors"
	"fmt"
	"strings"

	"github.com/liuxd6825/vzi/errext/exitcodes"
)

var (
	// ErrUnreachable is returned when the browser never accepted a
	// connection on its control endpoint.
	ErrUnreachable = errors.New("browser unreachable")

	// ErrTooManyAttempts is returned when an endpoint call is made with no
	// attempts left.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrNoDebugTarget is returned when the chosen page has no debugging socket.
	ErrNoDebugTarget = errors.New("page has no available debugging socket")

	// ErrChannelClosed is returned to waiters once the protocol channel is gone.
	ErrChannelClosed = errors.New("protocol channel closed")
)

// ConfigurationError reports bad or contradictory user input. It always
// exits with the BadInput status.
type ConfigurationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return e.Reason
}

// ExitCode implements errext.HasExitCode.
func (e *ConfigurationError) ExitCode() exitcodes.ExitCode {
	return exitcodes.BadInput
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// LaunchError is returned when the command daemonizing the browser
// reported a non-zero exit.
type LaunchError struct {
	Code int
	Argv []string
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("browser command failed with status %d (%s)", e.Code, strings.Join(e.Argv, " "))
}

// EvaluationError carries an exception thrown by the expression evaluated
// in the page.
type EvaluationError struct {
	Expression string
	Text       string
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	expr := e.Expression
	if len(expr) > 64 {
		expr = expr[:64] + "..."
	}
	return fmt.Sprintf("evaluating %q: %s", expr, e.Text)
}

func isRefused(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "refused")
}

func isReset(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "reset")
}
