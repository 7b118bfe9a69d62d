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

package cmd

import (
	"fmt"

	"github.com/fatih/color"
)

var fatalColor = color.New(color.FgRed, color.Bold) //nolint:gochecknoglobals

// printFatal writes the single diagnostic line of a failed run.
func printFatal(w *consoleWriter, msg string, fields map[string]interface{}) {
	line := "(*) " + msg
	if hint, ok := fields["hint"]; ok {
		line += fmt.Sprintf(" (hint: %v)", hint)
	}
	if w.isTTY {
		line = fatalColor.Sprint(line)
	}
	fprintf(w, "%s\n", line)
}

// fprintf panics when where's an error writing to the supplied io.Writer
func fprintf(w *consoleWriter, format string, a ...interface{}) (n int) {
	n, err := fmt.Fprintf(w, format, a...)
	if err != nil {
		panic(err.Error())
	}
	return n
}
