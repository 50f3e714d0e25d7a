// Package platform contains small OS-specific helpers so the rest of the
// codebase stays portable.
package platform
