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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/vzi/errext/exitcodes"
)

func TestWithExitCodeIfNone(t *testing.T) {
	t.Parallel()

	assert.NoError(t, WithExitCodeIfNone(nil, exitcodes.BadInput))

	base := errors.New("boom")
	err := WithExitCodeIfNone(base, exitcodes.BadInput)
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, exitcodes.BadInput, ExitCodeOf(err))

	// an existing code is kept
	err = WithExitCodeIfNone(fmt.Errorf("wrapped: %w", err), exitcodes.UnknownError)
	assert.Equal(t, exitcodes.BadInput, ExitCodeOf(err))
}

func TestExitCodeOf(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		exp  exitcodes.ExitCode
	}{
		{"plain", errors.New("x"), exitcodes.UnknownError},
		{"interrupt", &InterruptError{}, exitcodes.Interrupted},
		{"wrapped interrupt", fmt.Errorf("pump: %w", &InterruptError{}), exitcodes.Interrupted},
		{"hinted", WithHint(WithExitCodeIfNone(errors.New("x"), exitcodes.BadInput), "try -h"), exitcodes.BadInput},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.exp, ExitCodeOf(tc.err))
		})
	}
}

func TestInterruptError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsInterruptError(nil))
	assert.False(t, IsInterruptError(errors.New("x")))
	assert.True(t, IsInterruptError(fmt.Errorf("w: %w", &InterruptError{})))
	assert.Equal(t, InterruptedByUser, (&InterruptError{}).Error())
	assert.Equal(t, "stop", (&InterruptError{Reason: "stop"}).Error())
	assert.EqualValues(t, 130, (&InterruptError{}).ExitCode())
}

func TestFormat(t *testing.T) {
	t.Parallel()

	msg, fields := Format(nil)
	assert.Empty(t, msg)
	assert.Nil(t, fields)

	err := WithHint(WithHint(errors.New("no browser"), "install chrome"), "pass --browser-path")
	msg, fields = Format(err)
	assert.Equal(t, "no browser", msg)
	assert.Equal(t, "pass --browser-path (install chrome)", fields["hint"])
	assert.NotContains(t, fields, "exit_code")

	_, fields = Format(WithExitCodeIfNone(errors.New("bad flag"), exitcodes.BadInput))
	assert.Equal(t, 2, fields["exit_code"])
	assert.NotContains(t, fields, "hint")
}
