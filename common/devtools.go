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
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/liuxd6825/vzi/log"
	"github.com/liuxd6825/vzi/trace"
)

const maxResponseSize = 4 << 20

// PageInfo is a debuggable target as described by the DevTools HTTP endpoints.
type PageInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	Description          string `json:"description,omitempty"`
	DevtoolsFrontendURL  string `json:"devtoolsFrontendUrl,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// VersionInfo is the payload of the version endpoint.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version,omitempty"`
	WebKitVersion        string `json:"WebKit-Version,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
}

// DevTools talks to the local HTTP control endpoints of a browser started
// with remote debugging enabled.
type DevTools struct {
	base   *url.URL
	client *http.Client
	logger *log.Logger

	// Retries and Delay are used by the typed helpers.
	Retries int
	Delay   time.Duration
}

// NewDevTools returns a DevTools client for the browser listening on host:port.
func NewDevTools(host, port string, client *http.Client, logger *log.Logger) *DevTools {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &DevTools{
		base:    &url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)},
		client:  client,
		logger:  logger,
		Retries: DefaultRetries,
		Delay:   DefaultRetryDelay,
	}
}

// URL resolves path against the control endpoint address.
func (d *DevTools) URL(path string) string {
	return d.base.ResolveReference(&url.URL{Path: path}).String()
}

// Call performs method on path and returns the JSON body.
//
// A refused connection means the browser is not listening yet: the call is
// retried up to retries attempts in total, waiting delay in between, before
// ErrUnreachable is returned. A reset connection resolves to a nil body and
// no error. Any other failure is returned right away.
func (d *DevTools) Call(ctx context.Context, method, path string, retries int, delay time.Duration) ([]byte, error) {
	ctx, span := trace.Start(ctx, "devtools.call",
		attribute.String("http.method", method),
		attribute.String("devtools.path", path),
		attribute.Int("devtools.retries", retries),
	)
	body, err := d.call(ctx, method, path, retries, delay)
	span.SetAttributes(attribute.Bool("devtools.hung_up", err == nil && body == nil))
	trace.End(span, err)

	return body, err
}

func (d *DevTools) call(ctx context.Context, method, path string, retries int, delay time.Duration) ([]byte, error) {
	u := d.URL(path)
	if retries < 1 {
		return nil, fmt.Errorf("failed to get %s: %w", u, ErrTooManyAttempts)
	}

	var (
		body    []byte
		refused bool
		attempt int
	)
	op := func() error {
		attempt++
		b, err := d.do(ctx, method, u)
		refused = false
		switch {
		case err == nil:
			body = b
			return nil
		case isRefused(err):
			refused = true
			return err
		case isReset(err):
			d.logger.Warnf("devtools", "connection terminated by browser (%s): %v", u, err)
			body = nil
			return nil
		default:
			d.logger.Warnf("devtools", "unexpected request error (%s): %v", u, err)
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Debugf("devtools", "attempt %d/%d on %s: %v, retrying in %s", attempt, retries, u, err, wait)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries-1)),
		ctx,
	)

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("calling %s: %w", u, ctxErr)
		}
		if refused {
			d.logger.Warnf("devtools", "failed to talk to browser (%s): %v", u, err)
			return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrUnreachable, u, attempt, err)
		}
		return nil, fmt.Errorf("calling %s: %w", u, err)
	}

	return body, nil
}

func (d *DevTools) do(ctx context.Context, method, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s %s: browser returned %d: %s", method, u, resp.StatusCode, body)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s %s: invalid JSON response", method, u)
	}

	return body, nil
}

// List returns the current page targets.
func (d *DevTools) List(ctx context.Context) ([]PageInfo, error) {
	body, err := d.Call(ctx, http.MethodGet, PathList, d.Retries, d.Delay)
	if err != nil {
		return nil, err
	}
	var pages []PageInfo
	if err := decode(body, &pages); err != nil {
		return nil, fmt.Errorf("decoding page list: %w", err)
	}

	return pages, nil
}

// New asks the browser to open a new page. A nil page is returned when the
// browser hung up on the request.
func (d *DevTools) New(ctx context.Context) (*PageInfo, error) {
	body, err := d.Call(ctx, http.MethodPut, PathNew, d.Retries, d.Delay)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil //nolint:nilnil
	}
	var page PageInfo
	if err := decode(body, &page); err != nil {
		return nil, fmt.Errorf("decoding new page: %w", err)
	}

	return &page, nil
}

// Version reads the browser version. A nil version is returned when the
// browser hung up on the request.
func (d *DevTools) Version(ctx context.Context) (*VersionInfo, error) {
	return d.version(ctx, d.Retries)
}

// Ping checks with a single attempt whether a browser is listening. A
// browser that hangs up still counts as listening: the result is nil and
// so is the error.
func (d *DevTools) Ping(ctx context.Context) (*VersionInfo, error) {
	return d.version(ctx, 1)
}

func (d *DevTools) version(ctx context.Context, retries int) (*VersionInfo, error) {
	body, err := d.Call(ctx, http.MethodGet, PathVersion, retries, d.Delay)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil //nolint:nilnil
	}
	var v VersionInfo
	if err := decode(body, &v); err != nil {
		return nil, fmt.Errorf("decoding version: %w", err)
	}

	return &v, nil
}

// decode unmarshals a JSON body; a nil body leaves v untouched.
func decode(body []byte, v any) error {
	if body == nil {
		return nil
	}
	return json.Unmarshal(body, v) //nolint:wrapcheck
}
