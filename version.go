package gitdescribe

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5/plumbing"
)

// Result is the outcome of a describe call before formatting.
type Result struct {
	// Tag is the nearest matching tag, empty if none was reachable
	Tag string

	// Distance is the number of commits between the described commit and Tag
	Distance int

	// Hash is the described commit
	Hash plumbing.Hash

	// Abbreviate and Long are copied from the DescribeOptions
	Abbreviate int
	Long       bool

	// Dirty is set when the work tree has uncommitted changes
	Dirty bool
}

// String formats the result like git describe does.
func (r *Result) String() string {
	var description string
	switch {
	case r.Tag == "":
		description = r.ShortHash()
	case r.Abbreviate == 0, r.Distance == 0 && !r.Long:
		description = r.Tag
	default:
		description = fmt.Sprintf("%s-%d-g%s", r.Tag, r.Distance, r.ShortHash())
	}

	if r.Dirty {
		description += "-dirty"
	}
	return description
}

// Exact reports whether the described commit is the tagged commit itself.
func (r *Result) Exact() bool {
	return r.Tag != "" && r.Distance == 0
}

// ShortHash returns the abbreviated commit id. An abbreviation of zero falls
// back to DefaultAbbreviate.
func (r *Result) ShortHash() string {
	n := r.Abbreviate
	if n == 0 {
		n = DefaultAbbreviate
	}
	return abbreviate(r.Hash, n)
}

func abbreviate(hash plumbing.Hash, n int) string {
	full := hash.String()
	switch {
	case n < minAbbreviate:
		n = minAbbreviate
	case n > len(full):
		n = len(full)
	}
	return full[:n]
}

// Semver converts the result into a semantic version. The tag, minus prefix,
// any module path and a leading "v", is the version core. Commits past the
// tag and the dirty flag are recorded as build metadata, so
// "v1.2.0-3-gabcdef1-dirty" becomes "1.2.0+3.gabcdef1.dirty". Without a
// tag the version is 0.0.0.
func (r *Result) Semver(prefix string) (semver.Version, error) {
	version := semver.Version{}
	if r.Tag != "" {
		base := stripTagPrefixes(r.Tag, prefix)
		parsed, err := semver.ParseTolerant(base)
		if err != nil {
			return semver.Version{}, fmt.Errorf("parsing tag %q as version: %w", r.Tag, err)
		}
		version = parsed
	}

	if !r.Exact() {
		if r.Tag != "" {
			version.Build = append(version.Build, strconv.Itoa(r.Distance))
		}
		version.Build = append(version.Build, "g"+r.ShortHash())
	}
	if r.Dirty {
		version.Build = append(version.Build, "dirty")
	}
	return version, nil
}

func stripTagPrefixes(tag, prefix string) string {
	trimmed := strings.TrimPrefix(tag, prefix)
	_, versionComponent := path.Split(trimmed)
	return strings.TrimPrefix(versionComponent, "v")
}
