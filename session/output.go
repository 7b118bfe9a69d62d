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
	"fmt"
	"io"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/tidwall/gjson"

	"github.com/liuxd6825/vzi/storage"
)

// OutputMode says what happens to the values reported by the page.
type OutputMode int

// Output modes.
const (
	// OutputStdout writes the final value to standard output.
	OutputStdout OutputMode = iota
	// OutputFile rewrites a file with every value reported.
	OutputFile
	// OutputNone discards every value.
	OutputNone
)

func (m OutputMode) String() string {
	switch m {
	case OutputStdout:
		return "stdout"
	case OutputFile:
		return "file"
	case OutputNone:
		return "none"
	}
	return fmt.Sprintf("OutputMode(%d)", int(m))
}

// Output forwards values reported by the page.
type Output struct {
	mode      OutputMode
	path      string
	persister storage.Persister
	stdout    io.Writer
}

// NewOutput returns an output policy. path and persister are used in file
// mode, stdout in stdout mode.
func NewOutput(mode OutputMode, path string, persister storage.Persister, stdout io.Writer) *Output {
	return &Output{
		mode:      mode,
		path:      path,
		persister: persister,
		stdout:    stdout,
	}
}

// Report forwards v. Values reported before the end of the stream are
// only written in file mode.
func (o *Output) Report(ctx context.Context, v *runtime.RemoteObject, final bool) error {
	text, ok := valueText(v)
	if !ok {
		return nil
	}

	switch o.mode {
	case OutputFile:
		if err := o.persister.Persist(ctx, o.path, strings.NewReader(text)); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	case OutputStdout:
		if !final {
			return nil
		}
		if _, err := io.WriteString(o.stdout, text); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	case OutputNone:
	}

	return nil
}

// valueText returns a returned-by-value result as text. Strings are
// unquoted; other JSON values are written as is. Nothing is returned for
// null or undefined.
func valueText(v *runtime.RemoteObject) (string, bool) {
	if v == nil || len(v.Value) == 0 {
		return "", false
	}
	r := gjson.ParseBytes(v.Value)
	if r.Type == gjson.Null {
		return "", false
	}
	if r.Type == gjson.String {
		return r.Str, true
	}
	return r.Raw, true
}
