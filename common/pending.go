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

package common

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/tidwall/gjson"
)

// Message is an inbound protocol message together with the raw bytes it
// was decoded from.
type Message struct {
	cdproto.Message
	Raw []byte
}

// Pattern is a partial message. A message matches when every key, read as
// a gjson path, resolves to a value equal to the one in the pattern.
type Pattern map[string]any

// Match reports whether raw is a structural superset of the pattern.
func (p Pattern) Match(raw []byte) bool {
	for path, want := range p {
		got := gjson.GetBytes(raw, path)
		if !got.Exists() || !equalJSON(got, want) {
			return false
		}
	}
	return true
}

func equalJSON(got gjson.Result, want any) bool {
	if want == nil {
		return got.Type == gjson.Null
	}
	v := reflect.ValueOf(want)
	switch v.Kind() { //nolint:exhaustive
	case reflect.String:
		return got.Type == gjson.String && got.Str == v.String()
	case reflect.Bool:
		return (got.Type == gjson.True && v.Bool()) || (got.Type == gjson.False && !v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return got.Type == gjson.Number && got.Int() == v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return got.Type == gjson.Number && got.Uint() == v.Uint()
	case reflect.Float32, reflect.Float64:
		return got.Type == gjson.Number && got.Num == v.Float()
	default:
		b, err := json.Marshal(want)
		if err != nil {
			return false
		}
		return reflect.DeepEqual(gjson.ParseBytes(b).Value(), got.Value())
	}
}

// Continuation is fired with the first message matching a pending pattern.
// It runs on the goroutine dispatching inbound messages and must not block.
type Continuation func(msg *Message)

// Waiter resolves once with the message that matched its pattern.
type Waiter struct {
	table  *pendingTable
	entry  *pendingEntry
	result chan *Message
	closed chan struct{}
}

// Wait blocks until the pattern matched, the channel went away or ctx is done.
// A waiter given up on because of ctx is removed from the pending table.
func (w *Waiter) Wait(ctx context.Context) (*Message, error) {
	select {
	case msg := <-w.result:
		return msg, nil
	case <-w.closed:
		select {
		case msg := <-w.result:
			return msg, nil
		default:
			return nil, ErrChannelClosed
		}
	case <-ctx.Done():
		w.Cancel()
		return nil, ctx.Err() //nolint:wrapcheck
	}
}

// Cancel removes the waiter from the pending table if it is still there.
func (w *Waiter) Cancel() {
	w.table.remove(w.entry)
}

type pendingEntry struct {
	pattern Pattern
	fn      Continuation
	waiter  *Waiter
}

func (e *pendingEntry) fire(msg *Message) {
	if e.fn != nil {
		e.fn(msg)
	}
	e.waiter.result <- msg
}

// pendingTable keeps (pattern, continuation) pairs in registration order.
type pendingTable struct {
	mu      sync.Mutex
	entries []*pendingEntry
	closed  chan struct{}
	isDone  bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{closed: make(chan struct{})}
}

func (t *pendingTable) add(pattern Pattern, fn Continuation) *Waiter {
	w := &Waiter{
		table:  t,
		result: make(chan *Message, 1),
		closed: t.closed,
	}
	e := &pendingEntry{pattern: pattern, fn: fn, waiter: w}
	w.entry = e

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isDone {
		t.entries = append(t.entries, e)
	}

	return w
}

// take removes and returns the first entry matching raw, if any.
func (t *pendingTable) take(raw []byte) *pendingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.pattern.Match(raw) {
			t.entries = append(t.entries[:i:i], t.entries[i+1:]...)
			return e
		}
	}
	return nil
}

func (t *pendingTable) remove(entry *pendingEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e == entry {
			t.entries = append(t.entries[:i:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// close drops every entry and releases their waiters with ErrChannelClosed.
func (t *pendingTable) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isDone {
		return
	}
	t.isDone = true
	t.entries = nil
	close(t.closed)
}
