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

package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/liuxd6825/vzi/env"
)

// globalState holds everything the command touches outside of itself, so
// tests can swap any of it out.
type globalState struct {
	ctx context.Context

	fs      afero.Fs
	getwd   func() (string, error)
	rootDir func() (string, error)
	args    []string
	envVars env.LookupFunc

	outMutex       *sync.Mutex
	stdOut, stdErr *consoleWriter
	stdIn          io.Reader

	osExit       func(int)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)

	logger *logrus.Logger
}

func newGlobalState(ctx context.Context) *globalState {
	isDumbTerm := os.Getenv("TERM") == "dumb"
	stdoutTTY := !isDumbTerm && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	stderrTTY := !isDumbTerm && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	outMutex := &sync.Mutex{}
	stdOut := &consoleWriter{os.Stdout, colorable.NewColorable(os.Stdout), stdoutTTY, outMutex}
	stdErr := &consoleWriter{os.Stderr, colorable.NewColorable(os.Stderr), stderrTTY, outMutex}

	logger := &logrus.Logger{
		Out:       stdErr,
		Formatter: &logrus.TextFormatter{ForceColors: stderrTTY},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.WarnLevel,
	}

	return &globalState{
		ctx:          ctx,
		fs:           afero.NewOsFs(),
		getwd:        os.Getwd,
		rootDir:      executableDir,
		args:         append(make([]string, 0, len(os.Args)), os.Args...), // copy
		envVars:      env.Lookup,
		outMutex:     outMutex,
		stdOut:       stdOut,
		stdErr:       stdErr,
		stdIn:        os.Stdin,
		osExit:       os.Exit,
		signalNotify: signal.Notify,
		signalStop:   signal.Stop,
		logger:       logger,
	}
}

// executableDir is the installation directory: the parent of the one
// holding the binary, where www/ lives.
func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return "", err //nolint:wrapcheck
	}
	return filepath.Dir(filepath.Dir(exe)), nil
}

// A writer that syncs writes with a mutex and, if the output is a TTY,
// clears before newlines.
type consoleWriter struct {
	rawOut io.Writer
	writer io.Writer
	isTTY  bool
	mutex  *sync.Mutex
}

func (w *consoleWriter) Write(p []byte) (n int, err error) {
	origLen := len(p)
	if w.isTTY {
		// Add a TTY code to erase till the end of line with each new line
		p = bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\x1b', '[', '0', 'K', '\n'})
	}

	w.mutex.Lock()
	n, err = w.writer.Write(p)
	w.mutex.Unlock()

	if err != nil && n < origLen {
		return n, err
	}
	return origLen, err
}

// raw returns the underlying writer, for output that must reach the
// destination byte for byte.
func (w *consoleWriter) raw() io.Writer {
	return w.rawOut
}
