// SPDX-License-Identifier: EPL-2.0

// Package depcheck validates the declared dependencies of a module set
// against a base descriptor before any composition work starts.
//
// The check is a pure function of its inputs: it never mutates descriptors
// and scans every module and every declared dependency without
// short-circuiting, so one pass reports every violation. The reserved
// dependency name "bits-base" is resolved against the base descriptor rather
// than the module set. Unversioned modules (empty version string) cannot be
// enforced and downgrade their checks to warnings.
package depcheck

import (
	"fmt"
	"sort"
	"strings"

	"romg-cli/pkg/module"
	"romg-cli/pkg/semver"
)

// BaseDependencyName is the reserved dependency name that resolves against
// the base descriptor instead of the module set.
const BaseDependencyName = "bits-base"

// Violation is a single unsatisfied dependency declaration.
type Violation struct {
	// Module is the name of the module declaring the dependency.
	Module string
	// Dependency is the declared dependency name.
	Dependency string
	// Range is the declared semver range.
	Range string
	// Version is the version the range was evaluated against; empty when the
	// dependency was missing from the set entirely.
	Version string
}

// String renders the violation as a one-line diagnostic.
func (v Violation) String() string {
	if v.Version == "" {
		return fmt.Sprintf("module %s does not have required dependency %s", v.Module, v.Dependency)
	}
	return fmt.Sprintf("module %s: %s %s does not meet required dependency %s",
		v.Module, v.Dependency, v.Version, v.Range)
}

// Result is the outcome of one validation pass.
type Result struct {
	// Violations holds every unsatisfied dependency, in deterministic order.
	Violations []Violation
	// Warnings holds the checks that were skipped because they cannot be
	// enforced (unversioned base or dependency, duplicate names).
	Warnings []string
}

// OK reports whether the module set passed validation.
func (r Result) OK() bool {
	return len(r.Violations) == 0
}

// Diagnostics returns the violations as strings.
func (r Result) Diagnostics() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// Check validates every declared dependency of every module against the base
// descriptor and the module set. All checks run; the result is the
// conjunction of them.
func Check(base *module.Descriptor, modules []*module.Descriptor) Result {
	var res Result

	// Name lookup for the module set. Later duplicates overwrite earlier
	// ones; that is surfaced as a warning because the overwritten descriptor
	// silently drops out of every subsequent check.
	byName := make(map[string]*module.Descriptor, len(modules))
	order := make([]string, 0, len(modules))
	for _, m := range modules {
		if _, seen := byName[m.Name]; seen {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("duplicate module name %s: keeping the last descriptor", m.Name))
		} else {
			order = append(order, m.Name)
		}
		byName[m.Name] = m
	}

	if base.Version == "" {
		res.Warnings = append(res.Warnings, "skipping all version checks for unversioned base")
	}

	for _, name := range order {
		m := byName[name]

		depNames := make([]string, 0, len(m.Dependencies))
		for dep := range m.Dependencies {
			depNames = append(depNames, dep)
		}
		sort.Strings(depNames)

		for _, dep := range depNames {
			rng := m.Dependencies[dep]

			switch {
			case dep == BaseDependencyName:
				if base.Version == "" {
					continue
				}
				if !satisfied(rng, base.Version) {
					res.Violations = append(res.Violations, Violation{
						Module:     m.Name,
						Dependency: BaseDependencyName,
						Range:      rng,
						Version:    base.Version,
					})
				}

			case byName[dep] == nil:
				res.Violations = append(res.Violations, Violation{
					Module:     m.Name,
					Dependency: dep,
					Range:      rng,
				})

			case byName[dep].Version == "":
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("skipping version check for unversioned %s: %s %s", m.Name, dep, rng))

			default:
				if !satisfied(rng, byName[dep].Version) {
					res.Violations = append(res.Violations, Violation{
						Module:     m.Name,
						Dependency: dep,
						Range:      rng,
						Version:    byName[dep].Version,
					})
				}
			}
		}
	}

	return res
}

// satisfied evaluates one range against one concrete version. An empty range
// or version passes vacuously (legacy unversioned packages); any pre-release
// or build suffix is stripped from the version before evaluation.
func satisfied(rng, version string) bool {
	if rng == "" || version == "" {
		return true
	}

	release, _, _ := strings.Cut(version, "-")
	ok, err := semver.Satisfies(rng, release)
	if err != nil {
		// Unparseable ranges or versions can never be proven satisfied.
		return false
	}
	return ok
}
