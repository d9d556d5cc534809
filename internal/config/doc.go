// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration.
//
// Precedence is environment over file over defaults. The file is strict YAML:
// unknown keys and trailing documents are errors. A Holder keeps the active
// configuration and reloads it when the file changes.
package config
