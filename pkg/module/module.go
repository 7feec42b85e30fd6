// SPDX-License-Identifier: EPL-2.0

// Package module defines the descriptors that identify base, module, and
// overlay packages, and loads them from source archives.
//
// A base/module source archive is a (optionally gzip-compressed) tar archive
// carrying a "module.json" descriptor at its root with at least a name, a
// version (possibly empty), and an optional dependency map. An overlay
// archive carries an "overlay.json" with a name and a version. Descriptors
// are validated against an embedded CUE schema and are immutable once loaded.
package module

import (
	_ "embed"

	"romg-cli/pkg/archive"
	"romg-cli/pkg/cueutil"
)

//go:embed module_schema.cue
var moduleSchema string

const (
	// DescriptorName is the descriptor file at the root of a base/module archive.
	DescriptorName = "module.json"
	// OverlayDescriptorName is the descriptor file at the root of an overlay archive.
	OverlayDescriptorName = "overlay.json"
)

// Descriptor identifies one base or module package.
type Descriptor struct {
	// Name uniquely identifies the module within one composition.
	Name string `json:"name"`
	// Version is a semver string; empty means unversioned.
	Version string `json:"version"`
	// Dependencies maps a module name to a semver range expression.
	Dependencies map[string]string `json:"dependencies"`
}

// OverlayDescriptor identifies one overlay package.
type OverlayDescriptor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Ref is the short name/version form a descriptor is referenced by in the
// build manifest's "base" field.
type Ref struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Ref returns the short reference form of the descriptor.
func (d *Descriptor) Ref() Ref {
	return Ref{Name: d.Name, Version: d.Version}
}

// ParseDescriptor parses and validates a module descriptor. The path is used
// for error reporting only.
func ParseDescriptor(data []byte, path string) (*Descriptor, error) {
	result, err := cueutil.ParseAndDecodeString[Descriptor](moduleSchema, data, "#Module",
		cueutil.WithFilename(path))
	if err != nil {
		return nil, err
	}

	d := result.Value
	if d.Dependencies == nil {
		d.Dependencies = map[string]string{}
	}
	return d, nil
}

// ParseOverlayDescriptor parses and validates an overlay descriptor.
func ParseOverlayDescriptor(data []byte, path string) (*OverlayDescriptor, error) {
	result, err := cueutil.ParseAndDecodeString[OverlayDescriptor](moduleSchema, data, "#Overlay",
		cueutil.WithFilename(path))
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// ReadDescriptor loads the module descriptor from the root of a base/module
// source archive.
func ReadDescriptor(archivePath string) (*Descriptor, error) {
	data, err := archive.ReadFile(archivePath, DescriptorName)
	if err != nil {
		return nil, err
	}
	return ParseDescriptor(data, archivePath)
}

// ReadOverlayDescriptor loads the overlay descriptor from the root of an
// overlay archive.
func ReadOverlayDescriptor(archivePath string) (*OverlayDescriptor, error) {
	data, err := archive.ReadFile(archivePath, OverlayDescriptorName)
	if err != nil {
		return nil, err
	}
	return ParseOverlayDescriptor(data, archivePath)
}
