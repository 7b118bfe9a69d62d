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

import "time"

const (
	// Defaults

	DefaultBind    string = "127.0.0.1"
	DefaultHost    string = "localhost"
	DefaultPort    string = "9222"
	DefaultTimeout        = 60 * time.Second

	// Endpoint polling

	DefaultRetries    int           = 10
	DefaultRetryDelay time.Duration = 333 * time.Millisecond

	// Shutdown draining

	ShutdownPollInterval time.Duration = 100 * time.Millisecond
	ShutdownMaxWait      time.Duration = 10 * time.Second

	// DevTools control endpoints

	PathList    = "/json/list"
	PathNew     = "/json/new"
	PathVersion = "/json/version"
)
