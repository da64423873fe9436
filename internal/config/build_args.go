package config

import "fmt"

// ModuleName is printed by the CLI and stamped into build metadata.
const ModuleName = "wdk-wallet-evm"

// Build arguments, set via ldflags at build time.
var (
	Commit    = "unknown"
	BuildDate = "unknown"
)

// GetFormattedBuildArgs returns "<module> @ <commit> (<build date>)".
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
