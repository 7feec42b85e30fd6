// SPDX-License-Identifier: EPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/romg/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/romg/config.cue on macOS, %APPDATA%\romg\config.cue
// on Windows). The package provides type-safe configuration access covering the target
// architecture, bundle layout format, build hook execution, and output settings.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid configurations.
package config
