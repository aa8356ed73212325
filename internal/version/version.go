package version

import "fmt"

// Injected at build time via -ldflags "-X".
var (
	Version   = "0.1.0"
	Commit    = "dev"
	BuildDate = "unknown"
)

// Full returns the string printed by the version command.
func Full() string {
	return fmt.Sprintf("agentfix %s (commit %s, built %s)", Version, Commit, BuildDate)
}
