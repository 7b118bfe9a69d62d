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

package errext

import (
	"errors"

	"github.com/liuxd6825/vzi/errext/exitcodes"
)

// InterruptError is returned when the input stream was cut short by an
// interrupt signal while the browser was not meant to outlive vzi.
type InterruptError struct {
	Reason string
}

var _ HasExitCode = &InterruptError{}

// Error returns the reason of the interruption.
func (i *InterruptError) Error() string {
	if i.Reason == "" {
		return InterruptedByUser
	}
	return i.Reason
}

// ExitCode returns the status code used when the vzi process exits.
func (i *InterruptError) ExitCode() exitcodes.ExitCode {
	return exitcodes.Interrupted
}

// InterruptedByUser is the reason used for a SIGINT received mid-stream.
const InterruptedByUser = "interrupted"

// IsInterruptError returns true if err is *InterruptError.
func IsInterruptError(err error) bool {
	if err == nil {
		return false
	}
	var intErr *InterruptError
	return errors.As(err, &intErr)
}
