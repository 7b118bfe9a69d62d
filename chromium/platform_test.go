package chromium

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/vzi/common"
)

func TestBrowserArgs(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		opts LaunchOptions
		want []string
	}{
		{
			name: "defaults",
			want: []string{
				"--no-default-browser-check",
				"--no-first-run",
				"--remote-debugging-address=127.0.0.1",
				"--remote-debugging-port=9222",
			},
		},
		{
			name: "headless",
			opts: LaunchOptions{Bind: "0.0.0.0", Port: "9333", Headless: true},
			want: []string{
				"--disable-gpu",
				"--headless",
				"--no-default-browser-check",
				"--no-first-run",
				"--remote-debugging-address=0.0.0.0",
				"--remote-debugging-port=9333",
			},
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, BrowserArgs(&tc.opts))
		})
	}
}

func TestPlatformFor(t *testing.T) {
	t.Parallel()

	t.Run("darwin", func(t *testing.T) {
		t.Parallel()

		p := PlatformFor("darwin")
		path, err := p.BrowserPath("")
		require.NoError(t, err)
		assert.Equal(t, DarwinBrowserPath, path)

		path, err = p.BrowserPath("/opt/chrome")
		require.NoError(t, err)
		assert.Equal(t, "/opt/chrome", path)

		assert.Equal(t,
			[]string{"open", "-a", "/opt/chrome", "--args", "--headless"},
			p.DaemonCommand("/opt/chrome", []string{"--headless"}),
		)
	})

	t.Run("generic", func(t *testing.T) {
		t.Parallel()

		p := PlatformFor("plan9")
		assert.Equal(t, "plan9", p.Name)

		path, err := p.BrowserPath("/usr/local/bin/chrome")
		require.NoError(t, err)
		assert.Equal(t, "/usr/local/bin/chrome", path)

		assert.Equal(t,
			[]string{"daemonize", "/usr/local/bin/chrome", "--no-first-run"},
			p.DaemonCommand("/usr/local/bin/chrome", []string{"--no-first-run"}),
		)
	})

	t.Run("recyclable", func(t *testing.T) {
		t.Parallel()

		for _, goos := range []string{"darwin", "linux"} {
			p := PlatformFor(goos)
			assert.True(t, p.IsRecyclable(common.PageInfo{URL: "chrome://newtab/"}))
			assert.False(t, p.IsRecyclable(common.PageInfo{URL: "http://vzi.sci.sh/host.html#1"}))
		}
	})
}
