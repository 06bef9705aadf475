package singularity

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"github.com/colony-launcher/colony/internal/supervisor"
)

// MinimumVersion is the oldest Singularity release the launcher drives.
const MinimumVersion = ">= 3.0.0"

// ErrNoVersion is returned when version output carries no version number.
var ErrNoVersion = errors.New("no version in output")

var versionPattern = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.+-]+)?`)

// ParseVersion extracts the version from `singularity --version` output such
// as "singularity-ce version 3.11.4-jammy" or "apptainer version 1.2.5".
func ParseVersion(output string) (*semver.Version, error) {
	found := versionPattern.FindString(Clean(output))
	if found == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoVersion, output)
	}

	v, err := semver.NewVersion(found)
	if err != nil {
		return nil, fmt.Errorf("parse version %q: %w", found, err)
	}

	return v, nil
}

// Satisfies reports whether v meets constraint, e.g. MinimumVersion.
func Satisfies(v *semver.Version, constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("parse constraint %q: %w", constraint, err)
	}

	// Distribution suffixes parse as prereleases, which constraints skip.
	core, err := semver.NewVersion(fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()))
	if err != nil {
		return false, err
	}

	return c.Check(core), nil
}

// InstalledVersion runs `singularity --version` through the host.
func (q Querier) InstalledVersion(ctx context.Context) (*semver.Version, error) {
	exec := q.Exec
	if exec == nil {
		exec = supervisor.Run
	}

	res, err := exec(ctx, q.Host.Version())
	if err != nil {
		return nil, fmt.Errorf("run singularity --version: %w", err)
	}

	if res.ExitCode != 0 {
		return nil, fmt.Errorf("singularity --version exited %d: %s", res.ExitCode, Clean(string(res.Stderr)))
	}

	return ParseVersion(string(res.Stdout))
}
