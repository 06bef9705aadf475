package singularity

import (
	"regexp"
	"strings"
)

var (
	windowsPathPattern   = regexp.MustCompile(`^([A-Za-z]):\\(.*)$`)
	subsystemPathPattern = regexp.MustCompile(`^/mnt/([A-Za-z])/(.*)$`)
)

// Wslify converts a Windows drive path into the path the Linux subsystem
// mounts it under: C:\data\x.sif becomes /mnt/c/data/x.sif. Paths without a
// drive prefix only have their separators flipped.
func Wslify(windowsPath string) string {
	if m := windowsPathPattern.FindStringSubmatch(windowsPath); m != nil {
		return "/mnt/" + strings.ToLower(m[1]) + "/" + strings.ReplaceAll(m[2], `\`, "/")
	}

	return strings.ReplaceAll(windowsPath, `\`, "/")
}

// Unwslify is the inverse of Wslify for paths under /mnt/<drive>/. Other
// paths are returned unchanged.
func Unwslify(linuxPath string) string {
	if m := subsystemPathPattern.FindStringSubmatch(linuxPath); m != nil {
		return strings.ToUpper(m[1]) + `:\` + strings.ReplaceAll(m[2], "/", `\`)
	}

	return linuxPath
}
