// buildinfo.go captures build metadata (version, commit, date) for use in --version outputs.
package buildinfo

// Version, Commit, and Date are injected at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the build metadata as a single human-readable line.
func String() string {
	return Version + " (commit " + Commit + ", built " + Date + ")"
}
