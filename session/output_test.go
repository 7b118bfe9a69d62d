package session

import (
	"bytes"
	"context"
	"testing"

	"github.com/chromedp/cdproto/runtime"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/vzi/storage"
)

func value(raw string) *runtime.RemoteObject {
	return &runtime.RemoteObject{Type: runtime.TypeString, Value: []byte(raw)}
}

func TestOutputReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("file_rewritten_on_every_report", func(t *testing.T) {
		t.Parallel()

		fs := afero.NewMemMapFs()
		var stdout bytes.Buffer
		o := NewOutput(OutputFile, "out/chart.svg", storage.NewFilePersister(fs), &stdout)

		require.NoError(t, o.Report(ctx, value(`"<svg>1</svg>"`), false))
		got, err := afero.ReadFile(fs, "out/chart.svg")
		require.NoError(t, err)
		assert.Equal(t, "<svg>1</svg>", string(got))

		require.NoError(t, o.Report(ctx, value(`"<svg>2</svg>"`), true))
		got, err = afero.ReadFile(fs, "out/chart.svg")
		require.NoError(t, err)
		assert.Equal(t, "<svg>2</svg>", string(got))
		assert.Zero(t, stdout.Len())
	})

	t.Run("stdout_only_final", func(t *testing.T) {
		t.Parallel()

		var stdout bytes.Buffer
		o := NewOutput(OutputStdout, "", nil, &stdout)

		require.NoError(t, o.Report(ctx, value(`"partial"`), false))
		assert.Zero(t, stdout.Len())
		require.NoError(t, o.Report(ctx, value(`"final"`), true))
		assert.Equal(t, "final", stdout.String())
	})

	t.Run("none", func(t *testing.T) {
		t.Parallel()

		fs := afero.NewMemMapFs()
		var stdout bytes.Buffer
		o := NewOutput(OutputNone, "out.svg", storage.NewFilePersister(fs), &stdout)

		require.NoError(t, o.Report(ctx, value(`"x"`), true))
		assert.Zero(t, stdout.Len())
		exists, err := afero.Exists(fs, "out.svg")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("skips_missing_values", func(t *testing.T) {
		t.Parallel()

		var stdout bytes.Buffer
		o := NewOutput(OutputStdout, "", nil, &stdout)

		require.NoError(t, o.Report(ctx, nil, true))
		require.NoError(t, o.Report(ctx, &runtime.RemoteObject{Type: runtime.TypeUndefined}, true))
		require.NoError(t, o.Report(ctx, value(`null`), true))
		assert.Zero(t, stdout.Len())
	})

	t.Run("non_string_values_raw", func(t *testing.T) {
		t.Parallel()

		var stdout bytes.Buffer
		o := NewOutput(OutputStdout, "", nil, &stdout)

		require.NoError(t, o.Report(ctx, value(`{"count":3}`), true))
		assert.Equal(t, `{"count":3}`, stdout.String())
	})
}
