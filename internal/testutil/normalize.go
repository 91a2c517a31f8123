package testutil

import (
	"regexp"
	"strings"
)

var (
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})`)
	uuidPattern      = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	loopbackPattern  = regexp.MustCompile(`(127\.0\.0\.1|\[::1\]):\d+`)
	durationPattern  = regexp.MustCompile(`(duration|elapsed|retry_in)=[0-9.]+[a-zµ]+`)
)

// Normalizer rewrites volatile parts of log output so it can be compared
// against a golden file.
type Normalizer struct {
	// Paths are replaced by <tempdir>, longest first.
	Paths []string
}

// NormalizeLog replaces timestamps, UUIDs, loopback ports, durations and
// known temp paths with stable placeholders.
func (n Normalizer) NormalizeLog(s string) string {
	for _, p := range n.sortedPaths() {
		if p != "" {
			s = strings.ReplaceAll(s, p, "<tempdir>")
		}
	}
	s = timestampPattern.ReplaceAllString(s, "<ts>")
	s = uuidPattern.ReplaceAllString(s, "<uuid>")
	s = loopbackPattern.ReplaceAllString(s, "$1:<port>")
	s = durationPattern.ReplaceAllString(s, "$1=<dur>")
	return strings.ReplaceAll(s, "\\", "/")
}

func (n Normalizer) sortedPaths() []string {
	out := append([]string(nil), n.Paths...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// NormalizeLog is Normalizer{}.NormalizeLog.
func NormalizeLog(s string) string {
	return Normalizer{}.NormalizeLog(s)
}
