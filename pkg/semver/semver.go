// SPDX-License-Identifier: EPL-2.0

// Package semver evaluates semantic version range expressions against
// concrete version strings.
//
// A range is an OR-list ("||") of comparator sets; a comparator set is a
// whitespace-separated AND-list of simple constraints. Each constraint is an
// optional operator (=, ^, ~, >, >=, <, <=) followed by a version, or an
// x-range ("*", "1.x", "1.2.x"); a bare version means exact equality. This
// mirrors the subset of node-semver range syntax used by module dependency
// declarations.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version represents a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Original   string
}

// Constraint is a single comparison against a version.
type Constraint struct {
	// Op is the comparison operator (=, ^, ~, >, >=, <, <=) or one of the
	// x-range forms ("*" any, "x-minor" fixed major, "x-patch" fixed
	// major.minor).
	Op string
	// Version is the version to compare against.
	Version *Version
	// Original is the original constraint string.
	Original string
}

// Range is an OR-list of AND-lists of constraints. A version satisfies the
// range when it satisfies every constraint of at least one alternative.
type Range struct {
	alternatives [][]*Constraint
	// Original is the original range string.
	Original string
}

// versionRegex matches semantic version strings.
var versionRegex = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z\-\.]+))?(?:\+([0-9A-Za-z\-\.]+))?$`)

// constraintRegex matches single constraint strings.
var constraintRegex = regexp.MustCompile(`^([~^]|>=|<=|>|<|=)?\s*v?(\d+(?:\.\d+)?(?:\.\d+)?(?:-[0-9A-Za-z\-\.]+)?)$`)

// ParseVersion parses a version string into a Version struct.
func ParseVersion(s string) (*Version, error) {
	matches := versionRegex.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return nil, fmt.Errorf("invalid version format: %s", s)
	}

	v := &Version{Original: s}

	var err error
	v.Major, err = strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid major version: %w", err)
	}

	if matches[2] != "" {
		v.Minor, err = strconv.Atoi(matches[2])
		if err != nil {
			return nil, fmt.Errorf("invalid minor version: %w", err)
		}
	}

	if matches[3] != "" {
		v.Patch, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, fmt.Errorf("invalid patch version: %w", err)
		}
	}

	if matches[4] != "" {
		v.Prerelease = matches[4]
	}

	return v, nil
}

// String returns the version as a string.
func (v *Version) String() string {
	return v.Original
}

// Compare compares two versions.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v *Version) Compare(other *Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}

	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}

	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}

	// Prerelease versions have lower precedence
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	if v.Prerelease != other.Prerelease {
		if v.Prerelease < other.Prerelease {
			return -1
		}
		return 1
	}

	return 0
}

// isWildcard reports whether a version component is an x-range wildcard.
func isWildcard(s string) bool {
	return s == "x" || s == "X" || s == "*"
}

// parseXRange parses the x-range constraint forms: "*" (any version),
// "1.x"/"1.x.x" (fixed major), "1.2.x" (fixed major.minor). Reports false
// for anything else.
func parseXRange(s string) (*Constraint, bool) {
	t := strings.TrimPrefix(s, "v")
	if isWildcard(t) {
		return &Constraint{Op: "*", Version: &Version{Original: s}, Original: s}, true
	}

	parts := strings.Split(t, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, false
	}

	// Numeric components, then wildcards; a number after a wildcard is
	// malformed.
	wildcardAt := -1
	for i, p := range parts {
		if isWildcard(p) {
			if wildcardAt == -1 {
				wildcardAt = i
			}
			continue
		}
		if wildcardAt != -1 {
			return nil, false
		}
		if _, err := strconv.Atoi(p); err != nil {
			return nil, false
		}
	}
	if wildcardAt < 1 {
		return nil, false
	}

	v := &Version{Original: s}
	v.Major, _ = strconv.Atoi(parts[0])
	op := "x-minor"
	if wildcardAt == 2 {
		v.Minor, _ = strconv.Atoi(parts[1])
		op = "x-patch"
	}
	return &Constraint{Op: op, Version: v, Original: s}, true
}

// ParseConstraint parses a single constraint string.
func ParseConstraint(s string) (*Constraint, error) {
	s = strings.TrimSpace(s)

	if c, ok := parseXRange(s); ok {
		return c, nil
	}

	matches := constraintRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("invalid constraint format: %s", s)
	}

	op := matches[1]
	if op == "" {
		op = "="
	}

	version, err := ParseVersion(matches[2])
	if err != nil {
		return nil, fmt.Errorf("invalid version in constraint: %w", err)
	}

	return &Constraint{
		Op:       op,
		Version:  version,
		Original: s,
	}, nil
}

// Matches checks if a version satisfies the constraint.
func (c *Constraint) Matches(v *Version) bool {
	switch c.Op {
	case "*":
		return true

	case "x-minor":
		// 1.x := >=1.0.0 <2.0.0
		return v.Major == c.Version.Major

	case "x-patch":
		// 1.2.x := >=1.2.0 <1.3.0
		return v.Major == c.Version.Major && v.Minor == c.Version.Minor

	case "=":
		return v.Compare(c.Version) == 0

	case "^":
		// Caret: allows changes that do not modify the left-most non-zero digit
		// ^1.2.3 := >=1.2.3 <2.0.0
		// ^0.2.3 := >=0.2.3 <0.3.0
		// ^0.0.3 := >=0.0.3 <0.0.4
		if v.Compare(c.Version) < 0 {
			return false
		}
		if c.Version.Major != 0 {
			return v.Major == c.Version.Major
		}
		if c.Version.Minor != 0 {
			return v.Major == 0 && v.Minor == c.Version.Minor
		}
		return v.Major == 0 && v.Minor == 0 && v.Patch == c.Version.Patch

	case "~":
		// Tilde: allows patch-level changes
		// ~1.2.3 := >=1.2.3 <1.3.0
		if v.Compare(c.Version) < 0 {
			return false
		}
		return v.Major == c.Version.Major && v.Minor == c.Version.Minor

	case ">":
		return v.Compare(c.Version) > 0

	case ">=":
		return v.Compare(c.Version) >= 0

	case "<":
		return v.Compare(c.Version) < 0

	case "<=":
		return v.Compare(c.Version) <= 0

	default:
		return false
	}
}

// ParseRange parses a range expression. Alternatives are separated by "||",
// constraints within an alternative by whitespace.
func ParseRange(s string) (*Range, error) {
	r := &Range{Original: s}

	for _, alt := range strings.Split(s, "||") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return nil, fmt.Errorf("invalid range format: %s", s)
		}

		var set []*Constraint
		for _, field := range strings.Fields(alt) {
			c, err := ParseConstraint(field)
			if err != nil {
				return nil, fmt.Errorf("invalid range %q: %w", s, err)
			}
			set = append(set, c)
		}
		r.alternatives = append(r.alternatives, set)
	}

	if len(r.alternatives) == 0 {
		return nil, fmt.Errorf("invalid range format: %s", s)
	}

	return r, nil
}

// Matches checks if a version satisfies at least one alternative of the range.
func (r *Range) Matches(v *Version) bool {
	for _, set := range r.alternatives {
		ok := true
		for _, c := range set {
			if !c.Matches(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// String returns the range as a string.
func (r *Range) String() string {
	return r.Original
}

// Satisfies reports whether the concrete version string satisfies the range
// expression. It is a convenience wrapper around ParseRange and ParseVersion.
func Satisfies(rangeStr, version string) (bool, error) {
	r, err := ParseRange(rangeStr)
	if err != nil {
		return false, err
	}
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	return r.Matches(v), nil
}

// IsValidVersion checks if a string is a valid semantic version.
func IsValidVersion(s string) bool {
	_, err := ParseVersion(s)
	return err == nil
}

// IsValidRange checks if a string is a valid range expression.
func IsValidRange(s string) bool {
	_, err := ParseRange(s)
	return err == nil
}
