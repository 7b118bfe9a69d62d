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

// Package cmd implements the vzi command.
package cmd

import (
	"context"
	"errors"
	"os"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/vzi/chromium"
	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/errext"
	"github.com/liuxd6825/vzi/errext/exitcodes"
	"github.com/liuxd6825/vzi/session"
	"github.com/liuxd6825/vzi/storage"
	"github.com/liuxd6825/vzi/trace"
	"github.com/liuxd6825/vzi/version"
)

const usage = "vzi [-h] [-H] ([-c PIPE] | [PIPE.js]) ([-O] | [-o OUT]) [-p PORT]"

const examples = `
Quickly override render_event, and keep the browser open:

  echo hello | vzi -c 'render_event = (ev, doc) => doc.body.append(ev)' -K

Use a script file:

  cat events | vzi my-pipe.js

And/or run headlessly:

  cat events | vzi -H`

// rootCommand is the only command vzi has.
type rootCommand struct {
	globalState *globalState

	cmd *cobra.Command
}

func newRootCommand(gs *globalState) *rootCommand {
	c := &rootCommand{
		globalState: gs,
	}
	rootCmd := &cobra.Command{
		Use:           usage,
		Short:         "stream records into a live browser page",
		Long:          "vzi feeds its input, record by record, to a page running in a browser it starts or finds.",
		Example:       examples,
		Version:       version.Full(),
		Args:          maximumArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.run,
	}

	rootCmd.Flags().AddFlagSet(configFlagSet())
	rootCmd.SetArgs(gs.args[1:])
	rootCmd.SetOut(gs.stdOut)
	rootCmd.SetErr(gs.stdErr)
	rootCmd.SetIn(gs.stdIn)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errext.WithExitCodeIfNone(errext.WithHint(err, "usage: "+usage), exitcodes.BadInput)
	})

	c.cmd = rootCmd
	return c
}

func maximumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return errext.WithHint(common.NewConfigurationError("%v", err), "usage: "+usage)
		}
		return nil
	}
}

func (c *rootCommand) run(cmd *cobra.Command, args []string) error {
	gs := c.globalState

	conf, err := getConsolidatedConfig(gs, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := setupLogger(gs, int(conf.Verbosity.Int64))
	if err != nil {
		return err
	}
	opts, err := buildOptions(gs, conf, args)
	if err != nil {
		return err
	}
	logger.Debugf("client", "page %s, keep-alive %t, output %s", opts.PageURL, opts.KeepAlive, opts.OutputMode)

	tp, err := trace.TracerProviderFromConfigLine(gs.ctx, conf.TracesOutput.String)
	if err != nil {
		return common.NewConfigurationError("traces output %q: %v", conf.TracesOutput.String, err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(gs.ctx)); err != nil {
			logger.Warnf("trace", "flushing spans: %v", err)
		}
	}()
	ctx := trace.WithTracer(gs.ctx, trace.NewTracer(tp, map[string]string{"vzi.page_token": opts.PageToken}))

	sigC := make(chan os.Signal, 2)
	gs.signalNotify(sigC, os.Interrupt, syscall.SIGTERM)
	defer gs.signalStop(sigC)

	launcher := chromium.NewLauncher(chromium.PlatformFor(runtime.GOOS), logger)
	client := session.NewClient(opts, launcher, logger)
	if err := client.Init(ctx); err != nil {
		if serr := client.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			logger.Debugf("client", "shutting down after failed start: %v", serr)
		}
		client.Close()
		return err
	}

	return client.Run(ctx, gs.stdIn, gs.stdOut.raw(), storage.NewFilePersister(gs.fs), sigC)
}

func (c *rootCommand) execute() {
	ctx, cancel := context.WithCancel(c.globalState.ctx)
	defer cancel()
	c.globalState.ctx = ctx

	err := c.cmd.Execute()
	if err == nil {
		cancel()
		c.globalState.osExit(0)
		return
	}

	exitCode := errext.ExitCodeOf(err)
	var ierr *errext.InterruptError
	if errors.As(err, &ierr) {
		c.globalState.logger.Debug(ierr.Error())
	} else {
		msg, fields := errext.Format(err)
		c.globalState.logger.WithFields(fields).Debug(msg)
		printFatal(c.globalState.stdErr, msg, fields)
	}

	cancel()
	c.globalState.osExit(int(exitCode))
}

// Execute runs vzi with the process arguments and environment, then exits.
func Execute() {
	gs := newGlobalState(context.Background())

	newRootCommand(gs).execute()
}
