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

// Package exitcodes contains the constants representing the reserved vzi exit codes.
package exitcodes

// ExitCode is just a type representing a process exit code for vzi
type ExitCode uint8

// list of exit codes used by vzi
const (
	UnknownError ExitCode = 1
	BadInput     ExitCode = 2

	// Interrupted follows the shell convention of 128 + SIGINT.
	Interrupted ExitCode = 128 + 2
)
