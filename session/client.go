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
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"

	"github.com/liuxd6825/vzi/chromium"
	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/log"
	"github.com/liuxd6825/vzi/storage"
	"github.com/liuxd6825/vzi/trace"
)

// Client ties the browser, its page and the input stream together.
type Client struct {
	opts     *Options
	launcher *chromium.Launcher
	devtools *common.DevTools
	resolver *common.TargetResolver
	logger   *log.Logger

	process *common.BrowserProcess
	target  *common.Target
	conn    *common.Connection
}

// NewClient returns a client for opts that starts browsers with launcher.
func NewClient(opts *Options, launcher *chromium.Launcher, logger *log.Logger) *Client {
	devtools := common.NewDevTools(opts.Browser.Host, opts.Browser.Port, nil, logger)
	return &Client{
		opts:     opts,
		launcher: launcher,
		devtools: devtools,
		resolver: common.NewTargetResolver(devtools, launcher.Platform().IsRecyclable, logger),
		logger:   logger,
	}
}

// Init starts or finds the browser and, unless only the browser is wanted,
// connects to the session's page.
func (c *Client) Init(ctx context.Context) (err error) {
	ctx, span := trace.Start(ctx, "session.init", attribute.Bool("session.just_browser", c.opts.JustBrowser))
	defer func() { trace.End(span, err) }()

	if c.opts.JustBrowser {
		return c.launch(ctx)
	}
	if err := c.maybeBrowser(ctx); err != nil {
		return err
	}
	return c.connect(ctx)
}

// maybeBrowser launches a browser unless one already answers.
func (c *Client) maybeBrowser(ctx context.Context) error {
	v, err := c.devtools.Ping(ctx)
	if err == nil {
		if v != nil {
			c.logger.Infof("client", "browser w/ version %s (protocol %s)", v.Browser, v.ProtocolVersion)
		} else {
			c.logger.Infof("client", "browser hung up on the version request, assuming it is there")
		}
		return nil
	}
	c.logger.Debugf("client", "no browser answering: %v", err)

	return c.launch(ctx)
}

func (c *Client) launch(ctx context.Context) error {
	p, err := c.launcher.Launch(ctx, c.opts.LaunchOptions(), c.opts.KeepAlive)
	if err != nil {
		return err
	}
	c.process = p

	return nil
}

func (c *Client) connect(ctx context.Context) error {
	t, err := c.resolver.Resolve(ctx, c.opts.PageToken)
	if err != nil {
		return err
	}
	c.target = t

	conn, err := common.NewConnection(ctx, t.Page.WebSocketDebuggerURL, c.logger)
	if err != nil {
		return err
	}
	c.conn = conn

	return conn.Bootstrap(ctx, t, c.opts.PageURL)
}

// Target returns the page the client attached to, if any.
func (c *Client) Target() *common.Target {
	return c.target
}

// Shutdown releases the browser as the session configuration says.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.shutdownController().Shutdown(ctx)
}

func (c *Client) shutdownController() *ShutdownController {
	var pending func() int
	if c.conn != nil {
		pending = c.conn.Pending
	}
	// keep the interface nil when there is no process
	var process Killer
	if c.process != nil {
		process = c.process
	}

	return NewShutdownController(c.opts.KeepAlive, pending, process, c.logger)
}

// Run pumps in through the page and reports to stdout or fs per the
// output mode. With just-browser there is nothing to pump.
func (c *Client) Run(ctx context.Context, in io.Reader, stdout io.Writer, p storage.Persister, interrupts <-chan os.Signal) error {
	if c.conn == nil {
		return c.Shutdown(ctx)
	}
	defer c.Close()

	ctx, span := trace.Start(ctx, "session.run", attribute.String("session.output", c.opts.OutputMode.String()))
	defer span.End()

	output := NewOutput(c.opts.OutputMode, c.opts.OutputPath, p, stdout)
	pump := NewPump(c.conn, NewCursor(in, c.opts.Separator()), output, c.shutdownController(), c.opts, c.logger)

	return pump.Run(ctx, interrupts)
}

// Close drops the connection to the page, if any.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debugf("client", "closing connection: %v", err)
	}
}
