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

package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chromedp/cdproto/runtime"

	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/errext"
	"github.com/liuxd6825/vzi/log"
)

// Evaluator runs an expression in the page and returns its value.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string) (*runtime.RemoteObject, error)
}

// EvaluatorFunc is an adapter to allow regular functions to be used as an Evaluator.
type EvaluatorFunc func(ctx context.Context, expression string) (*runtime.RemoteObject, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, expression string) (*runtime.RemoteObject, error) {
	return f(ctx, expression)
}

// Shutdowner is invoked once when the pump stops.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Pump feeds input records to the page one at a time.
type Pump struct {
	eval      Evaluator
	cursor    *Cursor
	output    *Output
	shutdown  Shutdowner
	render    RenderConfig
	keepAlive bool
	logger    *log.Logger
}

// NewPump returns a pump reading from cursor and reporting to output.
func NewPump(
	eval Evaluator, cursor *Cursor, output *Output, shutdown Shutdowner, opts *Options, logger *log.Logger,
) *Pump {
	return &Pump{
		eval:      eval,
		cursor:    cursor,
		output:    output,
		shutdown:  shutdown,
		render:    opts.Render,
		keepAlive: opts.KeepAlive,
		logger:    logger,
	}
}

type record struct {
	data []byte
	err  error
}

// Run initializes the page, forwards every record and finalizes the page.
// An interrupt stops the stream: without keep-alive Run returns an
// *errext.InterruptError right away, otherwise the page is finalized as if
// the input had ended. The shutdown is invoked on every path.
func (p *Pump) Run(ctx context.Context, interrupts <-chan os.Signal) (err error) {
	defer func() {
		if serr := p.shutdown.Shutdown(context.WithoutCancel(ctx)); serr != nil && err == nil {
			err = serr
		}
	}()

	if err := p.initialize(ctx); err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	next, records := p.read(stop)

	// the cursor belongs to the reader goroutine from here on
	var count int
loop:
	for {
		// an interrupt pending at the top of the loop wins over input
		select {
		case sig := <-interrupts:
			if err := p.interrupted(sig, count); err != nil {
				return err
			}
			break loop
		default:
		}

		// ask for one record; the reader never runs ahead of the page
		next <- struct{}{}

		select {
		case sig := <-interrupts:
			if err := p.interrupted(sig, count); err != nil {
				return err
			}
			break loop
		case rec, ok := <-records:
			if !ok {
				break loop
			}
			if rec.err != nil {
				return fmt.Errorf("reading input: %w", rec.err)
			}
			count++
			if err := p.data(ctx, count, rec.data); err != nil {
				return err
			}
		}
	}

	return p.done(ctx, count)
}

func (p *Pump) interrupted(sig os.Signal, count int) error {
	p.logger.Debugf("pump", "received %v after %d records", sig, count)
	if p.keepAlive {
		return nil
	}
	return &errext.InterruptError{Reason: fmt.Sprintf("%s by %v", errext.InterruptedByUser, sig)}
}

// read delivers one record from the cursor for every request on next,
// until EOF or stop is closed. A read in flight when Run returns is left
// behind, never consumed twice.
func (p *Pump) read(stop <-chan struct{}) (chan<- struct{}, <-chan record) {
	next := make(chan struct{}, 1)
	ch := make(chan record)
	go func() {
		defer close(ch)
		for {
			select {
			case <-next:
			case <-stop:
				return
			}
			data, err := p.cursor.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case ch <- record{data: data, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	return next, ch
}

func (p *Pump) initialize(ctx context.Context) error {
	expr, err := p.render.Expression()
	if err != nil {
		return err
	}
	_, err = p.evaluate(ctx, expr)
	return err
}

func (p *Pump) data(ctx context.Context, n int, data []byte) error {
	p.logger.Tracef("pump", "record %d: %d bytes", n, len(data))

	expr := fmt.Sprintf(`handle_data("%s")`, base64.StdEncoding.EncodeToString(data))
	v, err := p.evaluate(ctx, expr)
	if err != nil {
		return err
	}
	return p.output.Report(ctx, v, false)
}

func (p *Pump) done(ctx context.Context, count int) error {
	p.logger.Debugf("pump", "input done after %d records", count)

	v, err := p.evaluate(ctx, "handle_done()")
	if err != nil {
		return err
	}
	return p.output.Report(ctx, v, true)
}

// evaluate runs expr in the page. Exceptions thrown by the page are
// logged and yield no value.
func (p *Pump) evaluate(ctx context.Context, expr string) (*runtime.RemoteObject, error) {
	v, err := p.eval.Evaluate(ctx, expr)
	var evalErr *common.EvaluationError
	if errors.As(err, &evalErr) {
		p.logger.Errorf("pump", "%v", evalErr)
		return nil, nil //nolint:nilnil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
