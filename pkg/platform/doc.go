// SPDX-License-Identifier: EPL-2.0

// Package platform centralizes the runtime.GOOS string literals used for
// platform-specific behavior, so they are never scattered as magic strings.
package platform
