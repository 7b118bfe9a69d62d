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

// Package version holds the vzi release version.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is a semantic version.
type Version struct {
	Major uint
	Minor uint
	Patch uint
}

// Current is the version of this build.
var Current = Version{Major: 0, Minor: 3, Patch: 0} //nolint:gochecknoglobals

// String returns major.minor.patch.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Full returns the current version, with the commit it was built from
// when the build recorded one.
func Full() string {
	full := Current.String()
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return full
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 8 {
			return full + " (commit/" + s.Value[:8] + ")"
		}
	}
	return full
}
