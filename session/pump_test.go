package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/chromedp/cdproto/runtime"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/errext"
	"github.com/liuxd6825/vzi/errext/exitcodes"
	"github.com/liuxd6825/vzi/log"
)

// fakePage records every expression and answers with respond.
type fakePage struct {
	mu          sync.Mutex
	expressions []string
	respond     func(expr string) (*runtime.RemoteObject, error)
}

func (p *fakePage) Evaluate(_ context.Context, expr string) (*runtime.RemoteObject, error) {
	p.mu.Lock()
	p.expressions = append(p.expressions, expr)
	p.mu.Unlock()

	if p.respond == nil {
		return &runtime.RemoteObject{Type: runtime.TypeUndefined}, nil
	}
	return p.respond(expr)
}

func (p *fakePage) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.expressions...)
}

type countingShutdown struct {
	calls int32
}

func (s *countingShutdown) Shutdown(context.Context) error {
	atomic.AddInt32(&s.calls, 1)
	return nil
}

func newTestPump(
	t *testing.T, page Evaluator, in io.Reader, stdout io.Writer, opts *Options, logger *log.Logger,
) (*Pump, *countingShutdown) {
	t.Helper()

	if logger == nil {
		logger = log.NewNullLogger()
	}
	shutdown := &countingShutdown{}
	out := NewOutput(opts.OutputMode, "", nil, stdout)
	p := NewPump(page, NewCursor(in, opts.Separator()), out, shutdown, opts, logger)

	return p, shutdown
}

func TestPumpEndToEnd(t *testing.T) {
	t.Parallel()

	sep := "\n"
	opts := &Options{
		OutputMode: OutputStdout,
		Render: RenderConfig{
			Define:    map[string]any{"width": 640.0},
			Format:    DefaultFormat,
			Separator: &sep,
		},
	}
	page := &fakePage{respond: func(expr string) (*runtime.RemoteObject, error) {
		if expr == "handle_done()" {
			return value(`"<svg>3</svg>"`), nil
		}
		return value(`"partial"`), nil
	}}
	var stdout bytes.Buffer
	p, shutdown := newTestPump(t, page, strings.NewReader("a\nb\nc\n"), &stdout, opts, nil)

	require.NoError(t, p.Run(context.Background(), make(chan os.Signal)))

	assert.Equal(t, []string{
		`initialize({"always":false,"define":{"width":640},"format":"unix","pipe":{},"separator":"\n"})`,
		`handle_data("YQ==")`,
		`handle_data("Yg==")`,
		`handle_data("Yw==")`,
		`handle_done()`,
	}, page.calls())
	assert.Equal(t, "<svg>3</svg>", stdout.String())
	assert.EqualValues(t, 1, atomic.LoadInt32(&shutdown.calls))
}

func TestPumpInitializeErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	logger, hook := newHookedLogger(t)
	page := &fakePage{respond: func(expr string) (*runtime.RemoteObject, error) {
		if strings.HasPrefix(expr, "initialize(") {
			return nil, &common.EvaluationError{Expression: expr, Text: "SyntaxError: Unexpected token"}
		}
		return &runtime.RemoteObject{Type: runtime.TypeUndefined}, nil
	}}
	p, shutdown := newTestPump(t, page, strings.NewReader("x"), io.Discard, &Options{}, logger)

	require.NoError(t, p.Run(context.Background(), make(chan os.Signal)))

	calls := page.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, `handle_data("eA==")`, calls[1])
	assert.True(t, hook.Contains(logrus.ErrorLevel, "SyntaxError: Unexpected token"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&shutdown.calls))
}

func TestPumpProtocolErrorIsFatal(t *testing.T) {
	t.Parallel()

	page := &fakePage{respond: func(expr string) (*runtime.RemoteObject, error) {
		if strings.HasPrefix(expr, "handle_data(") {
			return nil, common.ErrChannelClosed
		}
		return nil, nil
	}}
	p, shutdown := newTestPump(t, page, strings.NewReader("a\nb\n"), io.Discard, &Options{}, nil)

	err := p.Run(context.Background(), make(chan os.Signal))
	require.ErrorIs(t, err, common.ErrChannelClosed)
	assert.NotContains(t, page.calls(), "handle_done()")
	assert.EqualValues(t, 1, atomic.LoadInt32(&shutdown.calls))
}

func TestPumpInterrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		keepAlive bool
		wantDone  bool
	}{
		{name: "let_die", keepAlive: false, wantDone: false},
		{name: "keep_alive", keepAlive: true, wantDone: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// input that never ends
			pr, pw := io.Pipe()
			t.Cleanup(func() { _ = pw.Close() })

			interrupts := make(chan os.Signal, 1)
			interrupts <- syscall.SIGINT

			page := &fakePage{}
			p, shutdown := newTestPump(t, page, pr, io.Discard, &Options{KeepAlive: tt.keepAlive}, nil)
			err := p.Run(context.Background(), interrupts)

			calls := page.calls()
			assert.True(t, strings.HasPrefix(calls[0], "initialize("))
			assert.Equal(t, tt.wantDone, calls[len(calls)-1] == "handle_done()")
			assert.EqualValues(t, 1, atomic.LoadInt32(&shutdown.calls))

			if tt.wantDone {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errext.IsInterruptError(err))
			assert.Equal(t, exitcodes.Interrupted, errext.ExitCodeOf(err))
			assert.Len(t, calls, 1)
		})
	}
}

func TestPumpReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("read /dev/stdin: input/output error")
	page := &fakePage{}
	p, shutdown := newTestPump(t, page, io.MultiReader(strings.NewReader("a\n"), errReader{boom}), io.Discard, &Options{}, nil)

	err := p.Run(context.Background(), make(chan os.Signal))
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, atomic.LoadInt32(&shutdown.calls))
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// chunkReader hands out one chunk per Read and counts the calls.
type chunkReader struct {
	chunks []string
	reads  int32
}

func (r *chunkReader) Read(b []byte) (int, error) {
	n := atomic.AddInt32(&r.reads, 1)
	if int(n) > len(r.chunks) {
		return 0, io.EOF
	}
	return copy(b, r.chunks[n-1]), nil
}

func TestPumpReadsOnlyAfterEachRecordIsHandled(t *testing.T) {
	t.Parallel()

	in := &chunkReader{chunks: []string{"a\n", "b\n", "c\n"}}
	var (
		handled int32
		seen    []int32
	)
	page := &fakePage{respond: func(expr string) (*runtime.RemoteObject, error) {
		if strings.HasPrefix(expr, "handle_data(") {
			handled++
		}
		// record k is being handled and nothing past it was read
		seen = append(seen, atomic.LoadInt32(&in.reads)-handled)
		return &runtime.RemoteObject{Type: runtime.TypeUndefined}, nil
	}}
	p, _ := newTestPump(t, page, in, io.Discard, &Options{OutputMode: OutputNone}, nil)

	require.NoError(t, p.Run(context.Background(), make(chan os.Signal)))

	// initialize, three records, then done after the EOF read
	assert.Equal(t, []int32{0, 0, 0, 0, 1}, seen)
	assert.Len(t, page.calls(), 5)
}
