package buildinfo

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3"

	if got := UserAgent(); !strings.HasPrefix(got, "colony/1.2.3 (") {
		t.Fatalf("UserAgent() = %q", got)
	}
}
