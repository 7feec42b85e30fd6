// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"romg-cli/pkg/romg"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidOutputDir is returned when an OutputDirPath value is whitespace-only.
	ErrInvalidOutputDir = errors.New("invalid output directory")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// OutputDirPath represents a filesystem path to the bundle output directory.
	// The zero value ("") is valid and means "current directory".
	// Non-zero values must not be whitespace-only.
	OutputDirPath string

	// InvalidOutputDirError is returned when an OutputDirPath value is
	// non-empty but whitespace-only. It wraps ErrInvalidOutputDir.
	InvalidOutputDirError struct {
		Value OutputDirPath
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Arch is the architecture tag stamped into bundle manifests.
		// Empty means "resolve from the environment".
		Arch string `json:"arch" mapstructure:"arch"`
		// Format selects the bundle layout format (1 or 2).
		Format int `json:"format" mapstructure:"format"`
		// RunBuildHooks controls whether module install hooks run during
		// composition. Off by default; hooks need npm on PATH.
		RunBuildHooks bool `json:"run_build_hooks" mapstructure:"run_build_hooks"`
		// Output configures where and how bundles are written.
		Output OutputConfig `json:"output" mapstructure:"output"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// OutputConfig configures bundle output.
	OutputConfig struct {
		// Dir receives finished bundles.
		Dir OutputDirPath `json:"dir" mapstructure:"dir"`
		// Compress gzips the bundle archive.
		Compress bool `json:"compress" mapstructure:"compress"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme.
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Arch:          "",
		Format:        int(romg.FormatV1),
		RunBuildHooks: false,
		Output: OutputConfig{
			Dir:      "",
			Compress: true,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}

// Error implements the error interface.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("%s: %q (valid: auto, dark, light)", ErrInvalidColorScheme, e.Value)
}

// Unwrap returns the sentinel for errors.Is().
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// Error implements the error interface.
func (e *InvalidOutputDirError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidOutputDir, e.Value)
}

// Unwrap returns the sentinel for errors.Is().
func (e *InvalidOutputDirError) Unwrap() error {
	return ErrInvalidOutputDir
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Unwrap returns the sentinel for errors.Is().
func (e *InvalidConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Validate checks that the color scheme is one of the recognized values.
func (c ColorScheme) Validate() error {
	switch c {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return &InvalidColorSchemeError{Value: c}
	}
}

// String returns the string representation of the OutputDirPath.
func (p OutputDirPath) String() string { return string(p) }

// Validate checks that a non-empty path is not whitespace-only.
func (p OutputDirPath) Validate() error {
	if p != "" && strings.TrimSpace(string(p)) == "" {
		return &InvalidOutputDirError{Value: p}
	}
	return nil
}

// Validate checks every field of the configuration and collects all
// violations into a single InvalidConfigError.
func (c *Config) Validate() error {
	var fieldErrors []error

	if _, err := romg.ParseFormat(c.Format); err != nil {
		fieldErrors = append(fieldErrors, err)
	}
	if err := c.Output.Dir.Validate(); err != nil {
		fieldErrors = append(fieldErrors, err)
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		fieldErrors = append(fieldErrors, err)
	}

	if len(fieldErrors) > 0 {
		return &InvalidConfigError{FieldErrors: fieldErrors}
	}
	return nil
}
