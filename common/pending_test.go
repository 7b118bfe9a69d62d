package common

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatch(t *testing.T) {
	t.Parallel()

	const msg = `{"id":42,"method":"Page.loadEventFired","params":{"timestamp":1.5,"ok":true,"frame":{"id":"f1"}}}`

	tests := []struct {
		name    string
		pattern Pattern
		want    bool
	}{
		{"empty", Pattern{}, true},
		{"id", Pattern{"id": 42}, true},
		{"id_int64", Pattern{"id": int64(42)}, true},
		{"id_mismatch", Pattern{"id": 43}, false},
		{"id_as_string", Pattern{"id": "42"}, false},
		{"method", Pattern{"method": "Page.loadEventFired"}, true},
		{"method_type", Pattern{"method": cdproto.MethodType(cdproto.EventPageLoadEventFired)}, true},
		{"nested_path", Pattern{"params.frame.id": "f1"}, true},
		{"float", Pattern{"params.timestamp": 1.5}, true},
		{"bool", Pattern{"params.ok": true}, true},
		{"bool_mismatch", Pattern{"params.ok": false}, false},
		{"object", Pattern{"params.frame": map[string]any{"id": "f1"}}, true},
		{"missing_key", Pattern{"sessionId": "s"}, false},
		{"all_keys", Pattern{"id": 42, "method": "Page.loadEventFired"}, true},
		{"one_key_off", Pattern{"id": 42, "method": "Page.navigate"}, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.pattern.Match([]byte(msg)))
		})
	}
}

func TestPendingTableFirstMatchWins(t *testing.T) {
	t.Parallel()

	table := newPendingTable()
	var fired []string
	first := table.add(Pattern{"method": "Page.loadEventFired"}, func(*Message) { fired = append(fired, "first") })
	second := table.add(Pattern{"method": "Page.loadEventFired"}, func(*Message) { fired = append(fired, "second") })
	require.Equal(t, 2, table.len())

	raw := []byte(`{"method":"Page.loadEventFired","params":{}}`)
	e := table.take(raw)
	require.NotNil(t, e)
	e.fire(&Message{Raw: raw})

	assert.Equal(t, []string{"first"}, fired)
	assert.Equal(t, 1, table.len())

	msg, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, msg.Raw)

	select {
	case <-second.result:
		t.Fatal("second waiter must not resolve")
	default:
	}
}

func TestPendingTableNoMatch(t *testing.T) {
	t.Parallel()

	table := newPendingTable()
	table.add(Pattern{"id": 1}, nil)

	assert.Nil(t, table.take([]byte(`{"id":2,"result":{}}`)))
	assert.Equal(t, 1, table.len())
}

func TestWaiterCancelledByContext(t *testing.T) {
	t.Parallel()

	table := newPendingTable()
	w := table.add(Pattern{"id": 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := w.Wait(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, table.len())
}

func TestPendingTableClose(t *testing.T) {
	t.Parallel()

	table := newPendingTable()
	w := table.add(Pattern{"id": 1}, nil)
	table.close()
	table.close()

	_, err := w.Wait(context.Background())
	require.ErrorIs(t, err, ErrChannelClosed)
	assert.Zero(t, table.len())

	late := table.add(Pattern{"id": 2}, nil)
	_, err = late.Wait(context.Background())
	require.ErrorIs(t, err, ErrChannelClosed)
}
