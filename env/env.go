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

package env

import (
	"os"
	"strings"
)

const (
	// LogLevel overrides the level derived from the verbosity flag.
	LogLevel = "VZI_LOG"

	// LogCaller adds caller information to every log line when set.
	LogCaller = "VZI_LOG_CALLER"

	// LogCategoryFilter is a regexp limiting logged categories.
	LogCategoryFilter = "VZI_LOG_CATEGORY_FILTER"
)

// LookupFunc defines a function to look up a key from the environment.
type LookupFunc func(key string) (string, bool)

// Lookup is the LookupFunc backed by the process environment.
func Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// ConstLookup returns a LookupFunc that only knows the given variables.
// It is meant for tests and for replaying a captured environment.
func ConstLookup(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

// FromList turns a list of KEY=value pairs, as returned by os.Environ,
// into a LookupFunc. Later duplicates win.
func FromList(list []string) LookupFunc {
	vars := make(map[string]string, len(list))
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars[k] = v
	}
	return ConstLookup(vars)
}

// IsSet returns true when key is present in the environment and not
// set to a false-ish value.
func IsSet(lookup LookupFunc, key string) bool {
	v, ok := lookup(key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}
