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

// Package session drives one input stream through a page.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/liuxd6825/vzi/chromium"
)

// DefaultFormat is the input format assumed by the page.
const DefaultFormat = "unix"

// BrowserOptions locate the browser and its control endpoints.
type BrowserOptions struct {
	Path string
	Bind string
	Host string
	Port string
}

// Pipe is the rendering source injected into the page. At most one field
// is set.
type Pipe struct {
	CLI    string `json:"cli,omitempty"`
	Module string `json:"module,omitempty"`
	File   string `json:"file,omitempty"`
}

// RenderConfig is handed to the page on initialization.
type RenderConfig struct {
	Always    bool           `json:"always"`
	Define    map[string]any `json:"define"`
	Format    string         `json:"format"`
	Pipe      Pipe           `json:"pipe"`
	Separator *string        `json:"separator"`
}

// Expression returns the call initializing the page with c.
func (c RenderConfig) Expression() (string, error) {
	if c.Define == nil {
		c.Define = map[string]any{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding render configuration: %w", err)
	}
	return fmt.Sprintf("initialize(%s)", b), nil
}

// Options is the session configuration, gathered once at startup.
type Options struct {
	Browser     BrowserOptions
	Headless    bool
	JustBrowser bool
	KeepAlive   bool
	OutputMode  OutputMode
	OutputPath  string
	PageToken   string
	PageURL     string
	Render      RenderConfig
	Verbosity   int
}

// Separator returns the record delimiter of the input stream.
func (o *Options) Separator() string {
	if o.Render.Separator == nil || *o.Render.Separator == "" {
		return "\n"
	}
	return *o.Render.Separator
}

// LaunchOptions returns what the launcher needs to start the browser.
func (o *Options) LaunchOptions() *chromium.LaunchOptions {
	return &chromium.LaunchOptions{
		ExecutablePath: o.Browser.Path,
		Bind:           o.Browser.Bind,
		Port:           o.Browser.Port,
		Headless:       o.Headless,
	}
}
