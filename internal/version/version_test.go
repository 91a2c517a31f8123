package version

import "testing"

func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, BuildDate
	t.Cleanup(func() { Version, Commit, BuildDate = v, c, d })
	Version, Commit, BuildDate = version, commit, date
}

func TestString(t *testing.T) {
	tests := []struct {
		name   string
		commit string
		date   string
		want   string
	}{
		{"unstamped", "unknown", "unknown", "qsar 1.0.0"},
		{"short commit ignored", "abc", "unknown", "qsar 1.0.0"},
		{"seven chars ignored", "1234567", "unknown", "qsar 1.0.0"},
		{"full hash", "abc1234567890", "unknown", "qsar 1.0.0 (abc1234)"},
		{"hash and date", "12345678", "2025-01-15", "qsar 1.0.0 (1234567), built 2025-01-15"},
		{"date only", "unknown", "2025-01-15", "qsar 1.0.0, built 2025-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp(t, "1.0.0", tt.commit, tt.date)
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShortCommit(t *testing.T) {
	stamp(t, "1.0.0", "deadbeefcafe", "unknown")
	if got := ShortCommit(); got != "deadbee" {
		t.Errorf("ShortCommit() = %q, want %q", got, "deadbee")
	}
}

func TestServerHeader(t *testing.T) {
	stamp(t, "9.9.9", "unknown", "unknown")
	if got := ServerHeader(); got != "qsar/9.9.9" {
		t.Errorf("ServerHeader() = %q, want %q", got, "qsar/9.9.9")
	}
}
