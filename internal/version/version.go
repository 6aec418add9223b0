// Package version carries build information set through -ldflags.
package version

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// FullVersion is shown by `lcu-client version` and sent as the client
// version of every request.
var FullVersion = Version + " (" + Commit + ", " + Date + ")"
