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
	"github.com/liuxd6825/vzi/common"
	"github.com/liuxd6825/vzi/env"
	"github.com/liuxd6825/vzi/log"
)

// setupLogger configures the process logger from the verbosity and the
// logging environment variables.
func setupLogger(gs *globalState, verbosity int) (*log.Logger, error) {
	logger := log.New(gs.logger, nil)
	logger.SetVerbosity(verbosity)

	if level, ok := gs.envVars(env.LogLevel); ok && level != "" {
		if err := logger.SetLevel(level); err != nil {
			return nil, common.NewConfigurationError("invalid %s: %v", env.LogLevel, err)
		}
	}
	if env.IsSet(gs.envVars, env.LogCaller) {
		logger.ReportCaller()
	}
	if filter, ok := gs.envVars(env.LogCategoryFilter); ok {
		if err := logger.SetCategoryFilter(filter); err != nil {
			return nil, common.NewConfigurationError("invalid %s: %v", env.LogCategoryFilter, err)
		}
	}

	return logger, nil
}
