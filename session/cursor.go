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
	"bufio"
	"bytes"
	"io"
)

const (
	initialBufferSize = 64 * 1024
	maxRecordSize     = 64 * 1024 * 1024
)

// Cursor reads separator delimited records from the input stream.
type Cursor struct {
	scanner *bufio.Scanner

	// Count is the number of records read so far.
	Count int64
}

// NewCursor returns a Cursor over r. Records are delimited by separator,
// which defaults to a newline.
func NewCursor(r io.Reader, separator string) *Cursor {
	if separator == "" {
		separator = "\n"
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, initialBufferSize), maxRecordSize)
	s.Split(splitOn([]byte(separator)))

	return &Cursor{scanner: s}
}

// Next returns the next record without its delimiter, or io.EOF.
func (c *Cursor) Next() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, err //nolint:wrapcheck
		}
		return nil, io.EOF
	}
	c.Count++

	return bytes.Clone(c.scanner.Bytes()), nil
}

// splitOn is bufio.ScanLines for an arbitrary delimiter. A final record
// without delimiter is still returned.
func splitOn(sep []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.Index(data, sep); i >= 0 {
			return i + len(sep), data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		// Request more data.
		return 0, nil, nil
	}
}
