// Package phoenix provides the version information for agent-phoenix.
package phoenix

// Version is the current version of agent-phoenix.
const Version = "0.3.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
