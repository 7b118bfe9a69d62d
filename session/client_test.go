package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/vzi/chromium"
	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/log"
	"github.com/liuxd6825/vzi/storage"
	"github.com/liuxd6825/vzi/tests/ws"
)

type recordingPage struct {
	mu          sync.Mutex
	expressions []string
}

func (p *recordingPage) handle(conn *websocket.Conn, msg *cdproto.Message, writeCh chan cdproto.Message, done chan struct{}) {
	if msg.Method != cdproto.CommandRuntimeEvaluate {
		ws.CDPDefaultHandler(conn, msg, writeCh, done)
		return
	}
	var params struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return
	}
	p.mu.Lock()
	p.expressions = append(p.expressions, params.Expression)
	p.mu.Unlock()

	result := `{"result":{"type":"undefined"}}`
	if params.Expression == "handle_done()" {
		result = `{"result":{"type":"string","value":"<svg/>"}}`
	}
	ws.Reply(msg, writeCh, done, result)
}

func (p *recordingPage) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.expressions...)
}

func TestClientSession(t *testing.T) {
	t.Parallel()

	const cdpPath = "/devtools/page/tab"
	page := &recordingPage{}
	s := ws.NewServer(t,
		ws.WithDevToolsHandler(cdpPath),
		ws.WithCDPHandler(cdpPath, page.handle),
		ws.WithPages(cdpPath, ws.Page{ID: "tab", Type: "page", URL: chromium.RecyclablePageURL}),
	)

	opts := &Options{
		Browser:    BrowserOptions{Host: s.Host(), Port: s.Port()},
		OutputMode: OutputFile,
		OutputPath: "chart.svg",
		PageToken:  "1234",
		PageURL:    "http://localhost/www/index.html#1234",
		Render:     RenderConfig{Always: true, Format: DefaultFormat},
	}
	logger := log.NewNullLogger()
	c := NewClient(opts, chromium.NewLauncher(chromium.PlatformFor("linux"), logger), logger)

	ctx := context.Background()
	require.NoError(t, c.Init(ctx))
	require.NotNil(t, c.Target())
	assert.True(t, c.Target().Fresh)
	assert.Equal(t, "tab", c.Target().Page.ID)
	assert.Zero(t, s.NewCalls())

	fs := afero.NewMemMapFs()
	var stdout bytes.Buffer
	require.NoError(t, c.Run(ctx, strings.NewReader("1 2\n3 4\n"), &stdout, storage.NewFilePersister(fs), make(chan os.Signal)))

	assert.Equal(t, []string{
		`initialize({"always":true,"define":{},"format":"unix","pipe":{},"separator":null})`,
		`handle_data("MSAy")`,
		`handle_data("MyA0")`,
		`handle_done()`,
	}, page.calls())
	assert.Equal(t, []cdproto.MethodType{
		cdproto.CommandPageEnable,
		cdproto.CommandPageNavigate,
		cdproto.CommandRuntimeEvaluate,
		cdproto.CommandRuntimeEvaluate,
		cdproto.CommandRuntimeEvaluate,
		cdproto.CommandRuntimeEvaluate,
	}, s.Received())

	got, err := afero.ReadFile(fs, "chart.svg")
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(got))
	assert.Zero(t, stdout.Len())
}

func TestClientResumesTokenPage(t *testing.T) {
	t.Parallel()

	const cdpPath = "/devtools/page/host"
	page := &recordingPage{}
	s := ws.NewServer(t,
		ws.WithDevToolsHandler(cdpPath),
		ws.WithCDPHandler(cdpPath, page.handle),
		ws.WithPages(cdpPath, ws.Page{ID: "host", Type: "page", URL: "http://vzi.sci.sh/host.html#1234"}),
	)

	opts := &Options{
		Browser:    BrowserOptions{Host: s.Host(), Port: s.Port()},
		KeepAlive:  true,
		OutputMode: OutputNone,
		PageToken:  "1234",
	}
	logger := log.NewNullLogger()
	c := NewClient(opts, chromium.NewLauncher(chromium.PlatformFor("linux"), logger), logger)

	ctx := context.Background()
	require.NoError(t, c.Init(ctx))
	assert.False(t, c.Target().Fresh)

	require.NoError(t, c.Run(ctx, strings.NewReader(""), &bytes.Buffer{}, nil, make(chan os.Signal)))

	assert.NotContains(t, s.Received(), cdproto.MethodType(cdproto.CommandPageNavigate))
	assert.Equal(t, "handle_done()", page.calls()[len(page.calls())-1])
}

func TestClientKeepsBrowserThatHangsUpOnVersion(t *testing.T) {
	t.Parallel()

	const cdpPath = "/devtools/page/tab"
	page := &recordingPage{}
	s := ws.NewServer(t,
		ws.WithDevToolsHandler(cdpPath),
		ws.WithResetOn(common.PathVersion),
		ws.WithCDPHandler(cdpPath, page.handle),
		ws.WithPages(cdpPath, ws.Page{ID: "tab", Type: "page", URL: chromium.RecyclablePageURL}),
	)

	errLaunched := errors.New("launch attempted")
	platform := chromium.PlatformFor("linux")
	platform.BrowserPath = func(string) (string, error) {
		return "", errLaunched
	}

	opts := &Options{
		Browser:    BrowserOptions{Host: s.Host(), Port: s.Port()},
		OutputMode: OutputNone,
		PageToken:  "1234",
		PageURL:    "http://localhost/www/index.html#1234",
	}
	logger := log.NewNullLogger()
	c := NewClient(opts, chromium.NewLauncher(platform, logger), logger)
	defer c.Close()

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, "tab", c.Target().Page.ID)
	assert.Contains(t, s.Received(), cdproto.MethodType(cdproto.CommandPageNavigate))
}
