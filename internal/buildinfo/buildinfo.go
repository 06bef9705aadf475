// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

import "runtime"

// Version is set from main at startup. Defaults to "dev".
var Version = "dev"

// UserAgent identifies colony on outbound HTTP requests.
func UserAgent() string {
	return "colony/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
