// Package version carries qsar's build identity.
//
// Release builds stamp the variables with ldflags:
//
//	go build -ldflags "-X qsar/internal/version.Version=1.0.0 -X qsar/internal/version.Commit=$(git rev-parse HEAD)"
package version

import "fmt"

var (
	Version   = "0.3.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

const shortCommitLen = 7

// ShortCommit is the abbreviated commit hash, or "" when none was stamped.
func ShortCommit() string {
	if Commit == "unknown" || len(Commit) <= shortCommitLen {
		return ""
	}
	return Commit[:shortCommitLen]
}

// String is the one-line form shown by "qsar --version".
func String() string {
	s := "qsar " + Version
	if c := ShortCommit(); c != "" {
		s += " (" + c + ")"
	}
	if BuildDate != "unknown" {
		s += fmt.Sprintf(", built %s", BuildDate)
	}
	return s
}

// ServerHeader is the value qsar advertises in the admin health payload.
func ServerHeader() string {
	return "qsar/" + Version
}
