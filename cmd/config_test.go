package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/env"
	"github.com/liuxd6825/vzi/session"
)

func TestConfigConsolidation(t *testing.T) {
	t.Parallel()

	ts := newGlobalTestState(t)
	ts.envVars = env.ConstLookup(map[string]string{
		"VZI_BROWSER_PORT": "9333",
		"VZI_BROWSER_HOST": "chrome.local",
		"VZI_HEADLESS":     "true",
		"VZI_VERBOSITY":    "2",

		"VZI_TRACES_OUTPUT": "otel=collector:4317",
	})

	flags := configFlagSet()
	require.NoError(t, flags.Parse([]string{"-p", "9444", "-V", "1"}))

	conf, err := getConsolidatedConfig(ts.globalState, flags)
	require.NoError(t, err)
	assert.Equal(t, "9444", conf.BrowserPort.String, "flags win over env")
	assert.Equal(t, "chrome.local", conf.BrowserHost.String, "env wins over defaults")
	assert.Equal(t, common.DefaultBind, conf.BrowserBind.String)
	assert.True(t, conf.Headless.Bool)
	assert.EqualValues(t, 1, conf.Verbosity.Int64)
	assert.Equal(t, session.DefaultFormat, conf.Format.String)
	assert.Equal(t, "otel=collector:4317", conf.TracesOutput.String)
}

func TestConfigBadEnv(t *testing.T) {
	t.Parallel()

	ts := newGlobalTestState(t)
	ts.envVars = env.ConstLookup(map[string]string{"VZI_HEADLESS": "sure"})

	_, err := getConsolidatedConfig(ts.globalState, configFlagSet())
	var cerr *common.ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestConfigKeepAlive(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		conf Config
		exp  bool
	}{
		{"default", Config{}, true},
		{"headless", Config{Headless: null.BoolFrom(true)}, false},
		{"headless kept", Config{Headless: null.BoolFrom(true), KeepAlive: null.BoolFrom(true)}, true},
		{"just browser", Config{Headless: null.BoolFrom(true), JustBrowser: null.BoolFrom(true)}, true},
		{"let die", Config{LetDie: null.BoolFrom(true)}, false},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.exp, tc.conf.keepAlive())
		})
	}
}

func TestConfigOutputMode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, session.OutputStdout, Config{}.outputMode())
	assert.Equal(t, session.OutputFile, Config{Output: null.StringFrom("out.svg")}.outputMode())
	assert.Equal(t, session.OutputNone, Config{NoOutput: null.BoolFrom(true), Output: null.StringFrom("out.svg")}.outputMode())
}

func TestResolvePageURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		conf Config
		exp  string
	}{
		{"hosted", Config{}, "http://vzi.sci.sh/host.html#7"},
		{"local", Config{PageLocal: null.BoolFrom(true)}, "file:///opt/vzi/www/index.html#7"},
		{"relative", Config{PageURI: null.StringFrom("www/dev.html")}, "file:///opt/vzi/www/dev.html#7"},
		{"absolute", Config{PageURI: null.StringFrom("http://localhost:8000/x.html")}, "http://localhost:8000/x.html#7"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolvePageURL("/opt/vzi", tc.conf, "7")
			require.NoError(t, err)
			assert.Equal(t, tc.exp, got)
		})
	}
}

func TestParseDefines(t *testing.T) {
	t.Parallel()

	define, err := parseDefines([]string{"w=640", "title=a=b", "y=1", "y=two", "y=3.5", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"w":     640.0,
		"title": "a=b",
		"y":     []any{1.0, "two", 3.5},
		"empty": "",
	}, define)

	_, err = parseDefines([]string{"oops"})
	var cerr *common.ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestBuildOptions(t *testing.T) {
	t.Parallel()

	ts := newGlobalTestState(t)
	conf := defaultConfig().Apply(Config{
		CLI:       null.StringFrom("render_event = f"),
		Headless:  null.BoolFrom(true),
		Output:    null.StringFrom("out.svg"),
		Separator: null.StringFrom(""),
	})

	opts, err := buildOptions(ts.globalState, conf, nil)
	require.NoError(t, err)
	assert.False(t, opts.KeepAlive)
	assert.Equal(t, session.OutputFile, opts.OutputMode)
	assert.NotEmpty(t, opts.PageToken)
	assert.Equal(t, "http://vzi.sci.sh/host.html#"+opts.PageToken, opts.PageURL)
	assert.Equal(t, session.Pipe{CLI: "render_event = f"}, opts.Render.Pipe)
	assert.True(t, opts.Render.Always)
	require.NotNil(t, opts.Render.Separator)
	assert.Equal(t, "\n", opts.Separator())
	assert.Equal(t, common.DefaultPort, opts.Browser.Port)
}
