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
	"os"
	"os/exec"
	"sync"

	"github.com/liuxd6825/vzi/log"
)

// errProcessDetached is returned when killing a browser vzi does not own.
var errProcessDetached = errors.New("browser process is detached")

// BrowserProcess is the handle on a launched browser. In attached mode it
// owns the child process; in detached mode it only keeps the exit status of
// the command that daemonized the browser.
type BrowserProcess struct {
	process  *os.Process
	state    *os.ProcessState
	argv     []string
	detached bool
	logger   *log.Logger

	done     chan struct{}
	killOnce sync.Once
	killErr  error
}

// NewAttachedProcess wraps a started command as a process handle and reaps
// it in the background.
func NewAttachedProcess(cmd *exec.Cmd, logger *log.Logger) *BrowserProcess {
	p := &BrowserProcess{
		process: cmd.Process,
		argv:    cmd.Args,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.state = cmd.ProcessState
		logger.Debugf("BrowserProcess", "pid:%d exited: %v", p.Pid(), err)
		close(p.done)
	}()

	return p
}

// NewDetachedProcess records a finished daemonizing command.
func NewDetachedProcess(argv []string, state *os.ProcessState, logger *log.Logger) *BrowserProcess {
	done := make(chan struct{})
	close(done)

	return &BrowserProcess{
		state:    state,
		argv:     argv,
		detached: true,
		logger:   logger,
		done:     done,
	}
}

// Pid returns the pid of the attached browser, or -1 if detached.
func (p *BrowserProcess) Pid() int {
	if p.process == nil {
		return -1
	}
	return p.process.Pid
}

// Argv returns the command line the process was started with.
func (p *BrowserProcess) Argv() []string {
	return p.argv
}

// Detached reports whether the browser outlives vzi.
func (p *BrowserProcess) Detached() bool {
	return p.detached
}

// Exited is closed once the owned process (or the daemonizing command) exited.
func (p *BrowserProcess) Exited() <-chan struct{} {
	return p.done
}

// Kill terminates the attached browser. It is safe to call more than once.
func (p *BrowserProcess) Kill() error {
	if p.detached || p.process == nil {
		return errProcessDetached
	}
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			p.killErr = os.ErrProcessDone
			return
		default:
		}
		p.logger.Debugf("BrowserProcess:Kill", "pid:%d", p.Pid())
		p.killErr = p.process.Kill()
	})

	return p.killErr
}
