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
	"fmt"
	"math/rand"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/env"
	"github.com/liuxd6825/vzi/session"
	"github.com/liuxd6825/vzi/trace"
)

const (
	// LocalPageURI is the page served from the installation root.
	LocalPageURI = "www/index.html"

	// DefaultPageURI is the hosted page used unless told otherwise.
	DefaultPageURI = "http://vzi.sci.sh/host.html"

	maxPageToken = 1e16
)

func configFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.StringP("browser-bind", "B", common.DefaultBind, "address the browser listens on for debugging")
	flags.StringP("browser-path", "b", "", "browser executable")
	flags.StringP("browser-host", "R", common.DefaultHost, "host to reach the browser at")
	flags.StringP("browser-port", "p", common.DefaultPort, "browser debugging port")
	flags.StringP("cli", "c", "", "pipe source given inline")
	flags.StringArrayP("define", "d", nil, "page parameter `name=value`, repeatable")
	flags.StringP("format", "f", session.DefaultFormat, "input format")
	flags.BoolP("headless", "H", false, "run the browser without a window")
	flags.BoolP("just-browser", "J", false, "only start the browser")
	flags.BoolP("keep-alive", "K", false, "leave the browser running when done")
	flags.BoolP("let-die", "L", false, "stop the browser when done")
	flags.BoolP("page-local", "l", false, "use the page from the installation root")
	flags.StringP("module", "m", "", "pipe module shipped under www/")
	flags.BoolP("no-output", "O", false, "discard the page's output")
	flags.StringP("output", "o", "", "write the page's output to `file`")
	flags.StringP("page-token", "P", "", "token identifying the session's page")
	flags.StringP("separator", "s", "", "record separator of the input")
	flags.StringP("page-uri", "u", "", "page to load, relative to the installation root")
	flags.IntP("verbosity", "V", 0, "log verbosity")
	flags.String("root", "", "installation root")
	flags.String("traces-output", trace.OutputNone, "where spans go: none or otel[=endpoint][,proto=http|grpc][,header.Name=value]")
	return flags
}

// Config is the consolidated command line and environment configuration.
type Config struct {
	BrowserPath null.String `json:"browserPath" envconfig:"VZI_BROWSER_PATH"`
	BrowserBind null.String `json:"browserBind" envconfig:"VZI_BROWSER_BIND"`
	BrowserHost null.String `json:"browserHost" envconfig:"VZI_BROWSER_HOST"`
	BrowserPort null.String `json:"browserPort" envconfig:"VZI_BROWSER_PORT"`
	PageToken   null.String `json:"pageToken" envconfig:"VZI_PAGE_TOKEN"`
	PageURI     null.String `json:"pageURI" envconfig:"VZI_PAGE_URI"`
	Headless    null.Bool   `json:"headless" envconfig:"VZI_HEADLESS"`
	KeepAlive   null.Bool   `json:"keepAlive" envconfig:"VZI_KEEP_ALIVE"`
	Verbosity   null.Int    `json:"verbosity" envconfig:"VZI_VERBOSITY"`

	TracesOutput null.String `json:"tracesOutput" envconfig:"VZI_TRACES_OUTPUT"`

	CLI         null.String `json:"cli" ignored:"true"`
	Define      []string    `json:"define" ignored:"true"`
	Format      null.String `json:"format" ignored:"true"`
	JustBrowser null.Bool   `json:"justBrowser" ignored:"true"`
	LetDie      null.Bool   `json:"letDie" ignored:"true"`
	Module      null.String `json:"module" ignored:"true"`
	NoOutput    null.Bool   `json:"noOutput" ignored:"true"`
	Output      null.String `json:"output" ignored:"true"`
	PageLocal   null.Bool   `json:"pageLocal" ignored:"true"`
	Root        null.String `json:"root" ignored:"true"`
	Separator   null.String `json:"separator" ignored:"true"`
}

// Apply merges cfg into c. Set fields of cfg win.
func (c Config) Apply(cfg Config) Config {
	if cfg.BrowserPath.Valid {
		c.BrowserPath = cfg.BrowserPath
	}
	if cfg.BrowserBind.Valid {
		c.BrowserBind = cfg.BrowserBind
	}
	if cfg.BrowserHost.Valid {
		c.BrowserHost = cfg.BrowserHost
	}
	if cfg.BrowserPort.Valid {
		c.BrowserPort = cfg.BrowserPort
	}
	if cfg.PageToken.Valid {
		c.PageToken = cfg.PageToken
	}
	if cfg.PageURI.Valid {
		c.PageURI = cfg.PageURI
	}
	if cfg.Headless.Valid {
		c.Headless = cfg.Headless
	}
	if cfg.KeepAlive.Valid {
		c.KeepAlive = cfg.KeepAlive
	}
	if cfg.Verbosity.Valid {
		c.Verbosity = cfg.Verbosity
	}
	if cfg.TracesOutput.Valid {
		c.TracesOutput = cfg.TracesOutput
	}
	if cfg.CLI.Valid {
		c.CLI = cfg.CLI
	}
	if len(cfg.Define) > 0 {
		c.Define = cfg.Define
	}
	if cfg.Format.Valid {
		c.Format = cfg.Format
	}
	if cfg.JustBrowser.Valid {
		c.JustBrowser = cfg.JustBrowser
	}
	if cfg.LetDie.Valid {
		c.LetDie = cfg.LetDie
	}
	if cfg.Module.Valid {
		c.Module = cfg.Module
	}
	if cfg.NoOutput.Valid {
		c.NoOutput = cfg.NoOutput
	}
	if cfg.Output.Valid {
		c.Output = cfg.Output
	}
	if cfg.PageLocal.Valid {
		c.PageLocal = cfg.PageLocal
	}
	if cfg.Root.Valid {
		c.Root = cfg.Root
	}
	if cfg.Separator.Valid {
		c.Separator = cfg.Separator
	}
	return c
}

func defaultConfig() Config {
	return Config{
		BrowserBind: null.NewString(common.DefaultBind, false),
		BrowserHost: null.NewString(common.DefaultHost, false),
		BrowserPort: null.NewString(common.DefaultPort, false),
		Format:      null.NewString(session.DefaultFormat, false),

		TracesOutput: null.NewString(trace.OutputNone, false),
	}
}

// Gets configuration from CLI flags.
func getConfig(flags *pflag.FlagSet) (Config, error) {
	define, err := flags.GetStringArray("define")
	if err != nil {
		return Config{}, err //nolint:wrapcheck
	}
	return Config{
		BrowserPath: getNullString(flags, "browser-path"),
		BrowserBind: getNullString(flags, "browser-bind"),
		BrowserHost: getNullString(flags, "browser-host"),
		BrowserPort: getNullString(flags, "browser-port"),
		PageToken:   getNullString(flags, "page-token"),
		PageURI:     getNullString(flags, "page-uri"),
		Headless:    getNullBool(flags, "headless"),
		KeepAlive:   getNullBool(flags, "keep-alive"),
		Verbosity:   getNullInt(flags, "verbosity"),

		TracesOutput: getNullString(flags, "traces-output"),

		CLI:         getNullString(flags, "cli"),
		Define:      define,
		Format:      getNullString(flags, "format"),
		JustBrowser: getNullBool(flags, "just-browser"),
		LetDie:      getNullBool(flags, "let-die"),
		Module:      getNullString(flags, "module"),
		NoOutput:    getNullBool(flags, "no-output"),
		Output:      getNullString(flags, "output"),
		PageLocal:   getNullBool(flags, "page-local"),
		Root:        getNullString(flags, "root"),
		Separator:   getNullString(flags, "separator"),
	}, nil
}

func readEnvConfig(lookup env.LookupFunc) (Config, error) {
	var conf Config
	if err := envconfig.Process("", &conf, lookup); err != nil {
		return conf, common.NewConfigurationError("reading environment: %v", err)
	}
	return conf, nil
}

// getConsolidatedConfig assembles the configuration, in increasing
// priority, from the defaults, the environment and the flags.
func getConsolidatedConfig(gs *globalState, flags *pflag.FlagSet) (Config, error) {
	cliConf, err := getConfig(flags)
	if err != nil {
		return Config{}, err
	}
	envConf, err := readEnvConfig(gs.envVars)
	if err != nil {
		return Config{}, err
	}
	conf := defaultConfig().Apply(envConf).Apply(cliConf)

	return conf, conf.validate()
}

func (c Config) validate() error {
	switch {
	case c.LetDie.Bool && c.JustBrowser.Bool:
		return common.NewConfigurationError("why do you want to `let-die` AND `just-browser`?")
	case c.LetDie.Bool && c.KeepAlive.Bool:
		return common.NewConfigurationError("you need to pick one: `let-die` OR `keep-alive`")
	case c.PageLocal.Bool && c.PageURI.String != "":
		return common.NewConfigurationError("do you want `page-local` OR to specify the `page-uri`?")
	}
	return nil
}

// keepAlive says whether the browser outlives the session.
func (c Config) keepAlive() bool {
	switch {
	case c.LetDie.Bool:
		return false
	case c.KeepAlive.Bool:
		return true
	case c.JustBrowser.Bool:
		return true
	default:
		return !c.Headless.Bool
	}
}

func (c Config) outputMode() session.OutputMode {
	switch {
	case c.NoOutput.Bool:
		return session.OutputNone
	case c.Output.String != "":
		return session.OutputFile
	default:
		return session.OutputStdout
	}
}

// buildOptions derives the session configuration from conf.
func buildOptions(gs *globalState, conf Config, args []string) (*session.Options, error) {
	root := conf.Root.String
	if root == "" {
		dir, err := gs.rootDir()
		if err != nil {
			return nil, fmt.Errorf("locating installation root: %w", err)
		}
		root = dir
	}

	token := conf.PageToken.String
	if token == "" {
		token = strconv.FormatInt(rand.Int63n(maxPageToken), 10) //nolint:gosec
	}

	pageURL, err := resolvePageURL(root, conf, token)
	if err != nil {
		return nil, err
	}

	define, err := parseDefines(conf.Define)
	if err != nil {
		return nil, err
	}

	pipe, err := readPipe(gs, root, conf, args)
	if err != nil {
		return nil, err
	}

	render := session.RenderConfig{
		Always: conf.Output.String != "",
		Define: define,
		Format: conf.Format.String,
		Pipe:   pipe,
	}
	if render.Format == "" {
		render.Format = session.DefaultFormat
	}
	if conf.Separator.Valid {
		sep := conf.Separator.String
		render.Separator = &sep
	}

	return &session.Options{
		Browser: session.BrowserOptions{
			Path: conf.BrowserPath.String,
			Bind: conf.BrowserBind.String,
			Host: conf.BrowserHost.String,
			Port: conf.BrowserPort.String,
		},
		Headless:    conf.Headless.Bool,
		JustBrowser: conf.JustBrowser.Bool,
		KeepAlive:   conf.keepAlive(),
		OutputMode:  conf.outputMode(),
		OutputPath:  conf.Output.String,
		PageToken:   token,
		PageURL:     pageURL,
		Render:      render,
		Verbosity:   int(conf.Verbosity.Int64),
	}, nil
}

// resolvePageURL resolves the page against the installation root and tags
// it with the session token.
func resolvePageURL(root string, conf Config, token string) (string, error) {
	uri := DefaultPageURI
	switch {
	case conf.PageURI.String != "":
		uri = conf.PageURI.String
	case conf.PageLocal.Bool:
		uri = LocalPageURI
	}

	base := &url.URL{Scheme: "file", Path: filepath.ToSlash(root) + "/"}
	ref, err := url.Parse(uri)
	if err != nil {
		return "", common.NewConfigurationError("bad page uri %q: %v", uri, err)
	}
	u := base.ResolveReference(ref)
	u.Fragment = token

	return u.String(), nil
}

// parseDefines turns name=value pairs into page parameters. Values that
// parse as numbers become numbers and repeated names collect into a list.
func parseDefines(defs []string) (map[string]any, error) {
	define := make(map[string]any, len(defs))
	for _, def := range defs {
		name, raw, ok := strings.Cut(def, "=")
		if !ok {
			return nil, common.NewConfigurationError("no separator '=' in define %q", def)
		}
		var val any = raw
		if num, err := strconv.ParseFloat(raw, 64); err == nil {
			val = num
		}

		switch prev := define[name].(type) {
		case nil:
			define[name] = val
		case []any:
			define[name] = append(prev, val)
		default:
			define[name] = []any{prev, val}
		}
	}
	return define, nil
}

// readPipe loads the rendering source: inline, a shipped module or the
// positional file, in that order.
func readPipe(gs *globalState, root string, conf Config, args []string) (session.Pipe, error) {
	switch {
	case conf.CLI.String != "":
		return session.Pipe{CLI: conf.CLI.String}, nil
	case conf.Module.String != "":
		src, err := readSource(gs.fs, filepath.Join(root, "www", conf.Module.String+".js"))
		return session.Pipe{Module: src}, err
	case len(args) > 0 && args[0] != "":
		path := args[0]
		if !filepath.IsAbs(path) {
			cwd, err := gs.getwd()
			if err != nil {
				return session.Pipe{}, fmt.Errorf("locating working directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}
		src, err := readSource(gs.fs, path)
		return session.Pipe{File: src}, err
	}
	return session.Pipe{}, nil
}

func readSource(fs afero.Fs, path string) (string, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", common.NewConfigurationError("reading pipe source: %v", err)
	}
	return string(b), nil
}
