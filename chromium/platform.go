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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/liuxd6825/vzi/common"
)

// DarwinBrowserPath is the browser used on macOS when none is given.
const DarwinBrowserPath = "/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary"

// RecyclablePageURL is the address of an untouched new tab.
const RecyclablePageURL = "chrome://newtab/"

// LaunchOptions are the settings a browser is started with.
type LaunchOptions struct {
	ExecutablePath string
	Bind           string
	Port           string
	Headless       bool
	Env            []string
}

// Platform holds the launch policies that differ between operating systems.
type Platform struct {
	Name string

	// BrowserPath resolves the browser executable. An explicit path wins.
	BrowserPath func(explicit string) (string, error)

	// DaemonCommand returns the argv of the command that starts the browser
	// at path with args so it outlives this process.
	DaemonCommand func(path string, args []string) []string

	// IsRecyclable reports whether an existing page may be taken over.
	IsRecyclable common.RecyclableFunc
}

var platforms = map[string]Platform{
	"darwin": {
		Name:          "darwin",
		BrowserPath:   darwinBrowserPath,
		DaemonCommand: openCommand,
		IsRecyclable:  isNewTab,
	},
}

// PlatformFor returns the launch policies for goos, falling back to the
// generic ones.
func PlatformFor(goos string) Platform {
	if p, ok := platforms[goos]; ok {
		return p
	}
	return Platform{
		Name:          goos,
		BrowserPath:   genericBrowserPath(goos),
		DaemonCommand: daemonizeCommand,
		IsRecyclable:  isNewTab,
	}
}

func genericBrowserPath(goos string) func(string) (string, error) {
	return func(explicit string) (string, error) {
		if explicit != "" {
			return explicit, nil
		}
		if path := findExecPath(); path != "" {
			return path, nil
		}
		return "", common.NewConfigurationError("no guess for browser path on %s, please pass --browser-path", goos)
	}
}

func darwinBrowserPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return DarwinBrowserPath, nil
}

func daemonizeCommand(path string, args []string) []string {
	return append([]string{"daemonize", path}, args...)
}

func openCommand(path string, args []string) []string {
	return append([]string{"open", "-a", path, "--args"}, args...)
}

func isNewTab(p common.PageInfo) bool {
	return p.URL == RecyclablePageURL
}

// BrowserArgs returns the command line flags enabling remote debugging.
func BrowserArgs(opts *LaunchOptions) []string {
	bind, port := opts.Bind, opts.Port
	if bind == "" {
		bind = common.DefaultBind
	}
	if port == "" {
		port = common.DefaultPort
	}
	flags := map[string]any{
		"no-default-browser-check": true,
		"no-first-run":             true,
		// ignored by chrome unless headless
		"remote-debugging-address": bind,
		"remote-debugging-port":    port,
	}
	if opts.Headless {
		flags["headless"] = true
		flags["disable-gpu"] = true
	}

	return parseArgs(flags)
}

// parseArgs turns flags into command line arguments, sorted by name.
func parseArgs(flags map[string]any) []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	var args []string
	for _, name := range names {
		switch value := flags[name].(type) {
		case string:
			args = append(args, fmt.Sprintf("--%s=%s", name, value))
		case bool:
			if value {
				args = append(args, fmt.Sprintf("--%s", name))
			}
		}
	}

	return args
}

// findExecPath finds the path to the Chromium executable and returns it.
func findExecPath() string {
	for _, path := range [...]string{
		// Unix-like
		"headless_shell",
		"headless-shell",
		"chromium",
		"chromium-browser",
		"google-chrome",
		"google-chrome-stable",
		"google-chrome-beta",
		"google-chrome-unstable",
		"/usr/bin/google-chrome",

		// Windows
		"chrome",
		"chrome.exe", // in case PATHEXT is misconfigured
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		filepath.Join(os.Getenv("USERPROFILE"), `AppData\Local\Google\Chrome\Application\chrome.exe`),
	} {
		if _, err := exec.LookPath(path); err == nil {
			return path
		}
	}

	return ""
}
