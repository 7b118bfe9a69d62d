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
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"go.opentelemetry.io/otel/attribute"

	"github.com/liuxd6825/vzi/log"
	"github.com/liuxd6825/vzi/trace"
)

const (
	wsWriteBufferSize = 1 << 20
	maxIDBase         = 1 << 30
)

// ConnectionState is the lifecycle stage of a Connection.
type ConnectionState int32

// Connection lifecycle stages.
const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnectionState(%d)", int32(s))
}

/*
Connection is the protocol channel to a single page target.

Outbound commands are queued on sendCh and written by sendLoop in the order
they were sent. Inbound messages are read by recvLoop and dispatched to the
first entry of the pending table whose pattern they match; messages nobody
waits for are dropped.
*/
type Connection struct {
	wsURL        string
	logger       *log.Logger
	conn         *websocket.Conn
	sendCh       chan *cdproto.Message
	done         chan struct{}
	shutdownOnce sync.Once
	state        atomic.Int32

	// ids are a random per-connection base plus a sequence number.
	idBase int64
	msgID  int64

	pending *pendingTable

	// Reuse the easyjson structs to avoid allocs per Read/Write.
	decoder jlexer.Lexer
	encoder jwriter.Writer
}

// NewConnection dials the page's debugger socket.
func NewConnection(ctx context.Context, wsURL string, logger *log.Logger) (*Connection, error) {
	wsd := websocket.Dialer{
		HandshakeTimeout: DefaultTimeout,
		Proxy:            http.ProxyFromEnvironment,
		WriteBufferSize:  wsWriteBufferSize,
	}

	conn, _, err := wsd.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", wsURL, err)
	}

	c := &Connection{
		wsURL:   wsURL,
		logger:  logger,
		conn:    conn,
		sendCh:  make(chan *cdproto.Message, 32), // Avoid blocking in Send
		done:    make(chan struct{}),
		idBase:  rand.Int63n(maxIDBase), //nolint:gosec
		pending: newPendingTable(),
	}
	c.state.Store(int32(StateConnecting))

	go c.recvLoop()
	go c.sendLoop()

	return c, nil
}

// State returns the current lifecycle stage.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Pending returns the number of registered, unfired waits.
func (c *Connection) Pending() int {
	return c.pending.len()
}

// Done is closed once the underlying socket is gone.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) nextID() int64 {
	return c.idBase + atomic.AddInt64(&c.msgID, 1)
}

// When registers a wait for the first inbound message matching pattern.
// fn, if not nil, is fired with that message before the waiter resolves.
func (c *Connection) When(pattern Pattern, fn Continuation) *Waiter {
	return c.pending.add(pattern, fn)
}

// Send queues a command without waiting for its response.
func (c *Connection) Send(method string, params easyjson.Marshaler) (*cdproto.Message, error) {
	return c.send(c.nextID(), method, params)
}

func (c *Connection) send(id int64, method string, params easyjson.Marshaler) (*cdproto.Message, error) {
	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return nil, fmt.Errorf("encoding %s params: %w", method, err)
		}
	}
	msg := &cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: buf,
	}

	select {
	case <-c.done:
		return nil, ErrChannelClosed
	default:
	}
	select {
	case c.sendCh <- msg:
		return msg, nil
	case <-c.done:
		return nil, ErrChannelClosed
	}
}

// Execute sends a command and waits for its response.
func (c *Connection) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	ctx, span := trace.Start(ctx, "cdp.execute", attribute.String("cdp.method", method))
	err := c.execute(ctx, method, params, res)
	trace.End(span, err)

	return err
}

func (c *Connection) execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	id := c.nextID()
	// Registered before sending so a fast response can't slip past.
	w := c.When(Pattern{"id": id}, nil)
	if _, err := c.send(id, method, params); err != nil {
		w.Cancel()
		return err
	}

	msg, err := w.Wait(ctx)
	switch {
	case err != nil:
		return err
	case msg.Error != nil:
		return msg.Error
	case res != nil:
		return easyjson.Unmarshal(msg.Result, res) //nolint:wrapcheck
	}
	return nil
}

// Evaluate runs expression in the page and returns its value.
// A JavaScript exception thrown by the expression is an *EvaluationError.
func (c *Connection) Evaluate(ctx context.Context, expression string) (_ *runtime.RemoteObject, err error) {
	ctx, span := trace.Start(ctx, "page.evaluate", attribute.Int("page.expression_size", len(expression)))
	defer func() { trace.End(span, err) }()

	var res runtime.EvaluateReturns
	params := runtime.Evaluate(expression).WithReturnByValue(true)
	if err := c.Execute(ctx, runtime.CommandEvaluate, params, &res); err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return res.Result, &EvaluationError{Expression: expression, Text: exceptionText(res.ExceptionDetails)}
	}
	return res.Result, nil
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

// Bootstrap readies the target's page. A fresh target is navigated to
// pageURL and the call returns after its load event; a resumed one is
// used as is.
func (c *Connection) Bootstrap(ctx context.Context, t *Target, pageURL string) (err error) {
	ctx, span := trace.Start(ctx, "page.bootstrap",
		attribute.String("page.target_id", t.Page.ID),
		attribute.Bool("page.fresh", t.Fresh),
	)
	defer func() { trace.End(span, err) }()

	if t.Fresh {
		c.logger.Debugf("Connection:Bootstrap", "navigating %s to %s", t.Page.ID, pageURL)

		loaded := c.When(Pattern{"method": cdproto.EventPageLoadEventFired}, nil)
		if _, err := c.Send(page.CommandEnable, page.Enable()); err != nil {
			loaded.Cancel()
			return err
		}
		if _, err := c.Send(page.CommandNavigate, page.Navigate(pageURL)); err != nil {
			loaded.Cancel()
			return err
		}
		if _, err := loaded.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for page load: %w", err)
		}
	}

	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	return nil
}

// Close shuts the socket down. Pending waits fail with ErrChannelClosed.
func (c *Connection) Close() error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing))
	}
	return c.closeConnection(websocket.CloseNormalClosure)
}

// closeConnection cleanly closes the WebSocket connection.
// Returns an error if sending the close control frame fails.
func (c *Connection) closeConnection(code int) error {
	var err error

	c.shutdownOnce.Do(func() {
		defer func() {
			_ = c.conn.Close()

			// Closed before done fires, so watchers of Done see it
			c.state.Store(int32(StateClosed))
			// Stop the send loop and release waiters
			close(c.done)
			c.pending.close()
		}()

		err = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(10*time.Second),
		)
	})

	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err //nolint:wrapcheck
}

func (c *Connection) handleIOError(err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Errorf("cdp", "unexpected close of %s: %v", c.wsURL, err)
	}
	code := websocket.CloseGoingAway
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	_ = c.closeConnection(code)
}

func (c *Connection) recvLoop() {
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			c.handleIOError(err)
			return
		}

		c.logger.Debugf("cdp:recv", "<- %s", buf)

		var msg cdproto.Message
		c.decoder = jlexer.Lexer{Data: buf}
		msg.UnmarshalEasyJSON(&c.decoder)
		if err := c.decoder.Error(); err != nil {
			c.logger.Errorf("cdp", "decoding message: %v", err)
			continue
		}

		entry := c.pending.take(buf)
		if entry == nil {
			c.logger.Tracef("cdp", "no pending wait for message id:%d method:%q", msg.ID, msg.Method)
			continue
		}
		entry.fire(&Message{Message: msg, Raw: buf})
	}
}

func (c *Connection) sendLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			c.encoder = jwriter.Writer{}
			msg.MarshalEasyJSON(&c.encoder)
			if err := c.encoder.Error; err != nil {
				c.logger.Errorf("cdp", "encoding message %d: %v", msg.ID, err)
				continue
			}

			buf, _ := c.encoder.BuildBytes()
			c.logger.Debugf("cdp:send", "-> %s", buf)
			writer, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.handleIOError(err)
				return
			}
			if _, err := writer.Write(buf); err != nil {
				c.handleIOError(err)
				return
			}
			if err := writer.Close(); err != nil {
				c.handleIOError(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
