// SPDX-License-Identifier: EPL-2.0

package romg

import (
	"encoding/json"
	"os"

	"romg-cli/pkg/module"
)

// ArchEnvVar overrides the manifest architecture tag when set; it is
// consulted once, at manifest construction.
const ArchEnvVar = "OECORE_TARGET_ARCH"

// DefaultArch is the architecture tag used when no override is present.
const DefaultArch = "x86_64"

// OverlayVersion is the per-overlay entry in the manifest's overlays map.
type OverlayVersion struct {
	Version string `json:"version"`
}

// Manifest describes the exact contents of a composed archive. It grows
// monotonically as base, modules, and overlays are added and is persisted
// exactly once, after composition completes. The base descriptor is always
// modules[0].
type Manifest struct {
	Name     string                    `json:"name"`
	Version  string                    `json:"version"`
	Branch   string                    `json:"branch,omitempty"`
	Arch     string                    `json:"arch"`
	UUID     string                    `json:"uuid,omitempty"`
	Base     module.Ref                `json:"base"`
	Modules  []*module.Descriptor      `json:"modules"`
	Overlays map[string]OverlayVersion `json:"overlays"`
}

// resolveArch picks the manifest architecture tag: an explicit value wins,
// then the environment override, then the platform default.
func resolveArch(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(ArchEnvVar); env != "" {
		return env
	}
	return DefaultArch
}

// MarshalPretty renders the manifest as pretty-printed JSON with two-space
// indentation, the format the downstream sealing tooling consumes.
func (m *Manifest) MarshalPretty() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
