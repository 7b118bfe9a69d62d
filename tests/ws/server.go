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

package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/stretchr/testify/require"
)

// Page is a debuggable target as served by the fake control endpoints.
type Page struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// Server can be used as a test alternative to a real CDP compatible browser.
type Server struct {
	t          testing.TB
	Mux        *http.ServeMux
	ServerHTTP *httptest.Server
	Context    context.Context

	mu       sync.Mutex
	pages    []Page
	newCalls int
	received []cdproto.MethodType
	resets   map[string]bool
}

// NewServer returns a fully configured and running WS test server.
func NewServer(t testing.TB, opts ...func(*Server)) *Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		t:       t,
		Mux:     http.NewServeMux(),
		Context: ctx,
		resets:  make(map[string]bool),
	}
	s.ServerHTTP = httptest.NewServer(http.HandlerFunc(s.route))
	t.Cleanup(func() {
		s.ServerHTTP.Close()
		cancel()
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) route(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	reset := s.resets[req.URL.Path]
	s.mu.Unlock()
	if reset {
		resetConnection(w)
		return
	}
	s.Mux.ServeHTTP(w, req)
}

// resetConnection drops the request's TCP connection without a response,
// so the client sees a reset.
func resetConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	_ = conn.Close()
}

// Host returns the host the server listens on.
func (s *Server) Host() string {
	host, _, err := net.SplitHostPort(s.ServerHTTP.Listener.Addr().String())
	require.NoError(s.t, err)
	return host
}

// Port returns the port the server listens on.
func (s *Server) Port() string {
	_, port, err := net.SplitHostPort(s.ServerHTTP.Listener.Addr().String())
	require.NoError(s.t, err)
	return port
}

// WSURL returns the WebSocket URL of path on the server.
func (s *Server) WSURL(path string) string {
	u, err := url.Parse(s.ServerHTTP.URL)
	require.NoError(s.t, err)
	u.Scheme = "ws"
	u.Path = path
	return u.String()
}

// AddPage adds a page to the ones listed by the control endpoints.
func (s *Server) AddPage(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, p)
}

// Pages returns the pages currently listed.
func (s *Server) Pages() []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Page(nil), s.pages...)
}

// NewCalls returns how many times a new page was requested.
func (s *Server) NewCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newCalls
}

// Received returns the methods of every command received so far.
func (s *Server) Received() []cdproto.MethodType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cdproto.MethodType(nil), s.received...)
}

// WithPages lists pages on the control endpoints. A page without a socket
// URL is given one pointing to cdpPath.
func WithPages(cdpPath string, pages ...Page) func(*Server) {
	return func(s *Server) {
		for _, p := range pages {
			if p.WebSocketDebuggerURL == "" {
				p.WebSocketDebuggerURL = s.WSURL(cdpPath)
			}
			s.AddPage(p)
		}
	}
}

// WithDevToolsHandler serves the list, new and version endpoints.
// Pages opened through the new endpoint talk on cdpPath.
func WithDevToolsHandler(cdpPath string) func(*Server) {
	return func(s *Server) {
		writeJSON := func(w http.ResponseWriter, v any) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(v); err != nil {
				s.t.Logf("encoding response: %v", err)
			}
		}

		s.Mux.HandleFunc("/json/list", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, s.Pages())
		})
		s.Mux.HandleFunc("/json/version", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]string{
				"Browser":          "HeadlessChrome/118.0.0.0",
				"Protocol-Version": "1.3",
				"User-Agent":       "Mozilla/5.0",
			})
		})
		s.Mux.HandleFunc("/json/new", func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodPut {
				http.Error(w, "Using unsafe HTTP verb GET to invoke /json/new.", http.StatusMethodNotAllowed)
				return
			}
			s.mu.Lock()
			s.newCalls++
			p := Page{
				ID:                   fmt.Sprintf("new-%d", s.newCalls),
				Type:                 "page",
				URL:                  "about:blank",
				WebSocketDebuggerURL: s.WSURL(cdpPath),
			}
			s.pages = append(s.pages, p)
			s.mu.Unlock()

			writeJSON(w, p)
		})
	}
}

// WithResetOn makes requests for path end in a connection reset, taking
// precedence over any handler registered for it.
func WithResetOn(path string) func(*Server) {
	return func(s *Server) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.resets[path] = true
	}
}

// WithClosureAbnormalHandler attaches an abnormal closure behavior to Server.
func WithClosureAbnormalHandler(path string) func(*Server) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, req, w.Header())
		if err != nil {
			return
		}
		// This forces a connection closure without a proper WS close message exchange
		_ = conn.Close()
	}
	return func(s *Server) {
		s.Mux.Handle(path, http.HandlerFunc(handler))
	}
}

// CDPHandler answers a single command read from conn by queueing messages
// on writeCh.
type CDPHandler func(conn *websocket.Conn, msg *cdproto.Message, writeCh chan cdproto.Message, done chan struct{})

// WithCDPHandler attaches a custom CDP handler function to Server.
func WithCDPHandler(path string, fn CDPHandler) func(*Server) {
	return func(s *Server) {
		s.Mux.Handle(path, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.serveCDP(w, req, fn)
		}))
	}
}

func (s *Server) serveCDP(w http.ResponseWriter, req *http.Request, fn CDPHandler) {
	conn, err := (&websocket.Upgrader{}).Upgrade(w, req, w.Header())
	if err != nil {
		return
	}
	defer conn.Close() //nolint:errcheck

	done := make(chan struct{})
	writeCh := make(chan cdproto.Message)

	go func() {
		read := func(conn *websocket.Conn) (*cdproto.Message, error) {
			_, buf, err := conn.ReadMessage()
			if err != nil {
				return nil, err //nolint:wrapcheck
			}

			var msg cdproto.Message
			decoder := jlexer.Lexer{Data: buf}
			msg.UnmarshalEasyJSON(&decoder)
			if err := decoder.Error(); err != nil {
				return nil, err //nolint:wrapcheck
			}

			return &msg, nil
		}

		for {
			msg, err := read(conn)
			if err != nil {
				close(done)
				return
			}

			if msg.Method != "" {
				s.mu.Lock()
				s.received = append(s.received, msg.Method)
				s.mu.Unlock()
			}

			fn(conn, msg, writeCh, done)
		}
	}()

	go func() {
		write := func(conn *websocket.Conn, msg *cdproto.Message) {
			encoder := jwriter.Writer{}
			msg.MarshalEasyJSON(&encoder)
			if err := encoder.Error; err != nil {
				return
			}

			writer, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := encoder.DumpTo(writer); err != nil {
				return
			}
			_ = writer.Close()
		}

		for {
			select {
			case msg := <-writeCh:
				write(conn, &msg)
			case <-done:
				return
			}
		}
	}()

	select {
	case <-done: // Wait for done channel to be closed before closing connection
	case <-s.Context.Done():
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second),
		)
		<-done
	}
}

// Reply queues a response to msg carrying result.
func Reply(msg *cdproto.Message, writeCh chan cdproto.Message, done chan struct{}, result string) {
	select {
	case writeCh <- cdproto.Message{ID: msg.ID, Result: easyjson.RawMessage(result)}:
	case <-done:
	}
}

// Emit queues an event.
func Emit(method cdproto.MethodType, params string, writeCh chan cdproto.Message, done chan struct{}) {
	select {
	case writeCh <- cdproto.Message{Method: method, Params: easyjson.RawMessage(params)}:
	case <-done:
	}
}

// CDPDefaultHandler is a default handler for the CDP WS server.
// Navigation is answered and followed by a load event; evaluation yields
// undefined; every other command gets an empty result.
func CDPDefaultHandler(_ *websocket.Conn, msg *cdproto.Message, writeCh chan cdproto.Message, done chan struct{}) {
	if msg.Method == "" {
		return
	}
	switch msg.Method {
	case cdproto.MethodType(cdproto.CommandPageNavigate):
		Reply(msg, writeCh, done, `{"frameId":"frame_id_0123456789","loaderId":"loader_id_0123456789"}`)
		Emit(cdproto.EventPageLoadEventFired, `{"timestamp":1}`, writeCh, done)
	case cdproto.MethodType(cdproto.CommandRuntimeEvaluate):
		Reply(msg, writeCh, done, `{"result":{"type":"undefined"}}`)
	default:
		Reply(msg, writeCh, done, "{}")
	}
}
