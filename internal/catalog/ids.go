// Package catalog merges the static hosted-model catalog with dynamically
// discovered local models into the unified picker list, gated by user
// entitlements.
package catalog

import "strings"

// LocalModelIDPrefix namespaces option ids synthesized from local instances
// so they can be told apart from static catalog ids and reversed back to the
// raw identifier.
const LocalModelIDPrefix = "lmstudio:"

// LocalModelID builds the namespaced option id for a loaded instance.
func LocalModelID(identifier string) string {
	return LocalModelIDPrefix + identifier
}

// IsLocalModelID reports whether id names a local instance.
func IsLocalModelID(id string) bool {
	return strings.HasPrefix(id, LocalModelIDPrefix)
}

// ExtractIdentifier recovers the raw instance identifier from a namespaced
// option id.
func ExtractIdentifier(id string) string {
	return strings.TrimPrefix(id, LocalModelIDPrefix)
}
