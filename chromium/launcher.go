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

package chromium

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/errext"
	"github.com/liuxd6825/vzi/log"
)

// Launcher starts browsers according to a platform's policies.
type Launcher struct {
	platform Platform
	logger   *log.Logger
}

// NewLauncher returns a Launcher for p.
func NewLauncher(p Platform, logger *log.Logger) *Launcher {
	return &Launcher{platform: p, logger: logger}
}

// Platform returns the policies the launcher applies.
func (l *Launcher) Platform() Platform {
	return l.platform
}

// Launch starts a browser that outlives this process when keepAlive is set,
// and a child browser otherwise.
func (l *Launcher) Launch(ctx context.Context, opts *LaunchOptions, keepAlive bool) (*common.BrowserProcess, error) {
	if keepAlive {
		return l.Detach(ctx, opts)
	}
	return l.Attach(ctx, opts)
}

// Attach starts the browser as a child process and returns without waiting.
// The browser's standard output is discarded.
func (l *Launcher) Attach(ctx context.Context, opts *LaunchOptions) (*common.BrowserProcess, error) {
	path, err := l.platform.BrowserPath(opts.ExecutablePath)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, BrowserArgs(opts)...) //nolint:gosec
	cmd.Stderr = os.Stderr
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	l.logger.Debugf("launcher", "starting %q", cmd.Args)
	// We must start the cmd before calling cmd.Wait, as otherwise the two
	// can run into a data race.
	if err := cmd.Start(); err != nil {
		return nil, errext.WithHint(
			fmt.Errorf("cannot start browser executable: %w", err),
			"is the browser installed? pass --browser-path",
		)
	}

	return common.NewAttachedProcess(cmd, l.logger), nil
}

// Detach starts the browser through the platform's daemonizing command and
// blocks until that command exits. A non-zero exit is a *common.LaunchError.
func (l *Launcher) Detach(ctx context.Context, opts *LaunchOptions) (*common.BrowserProcess, error) {
	path, err := l.platform.BrowserPath(opts.ExecutablePath)
	if err != nil {
		return nil, err
	}

	argv := l.platform.DaemonCommand(path, BrowserArgs(opts))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Stderr = os.Stderr
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	l.logger.Debugf("launcher", "daemonizing %q", argv)
	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		return nil, &common.LaunchError{Code: exitErr.ExitCode(), Argv: argv}
	case err != nil:
		return nil, errext.WithHint(
			fmt.Errorf("cannot run %s: %w", argv[0], err),
			fmt.Sprintf("is %s installed?", argv[0]),
		)
	}

	return common.NewDetachedProcess(argv, cmd.ProcessState, l.logger), nil
}
