// Package versions holds the artifact version-tag convention shared by the
// registry and object-store resolvers.
//
// Release artifacts are tagged with their commit identifier plus a reserved
// "-SHA1" suffix (e.g. "f3a9c1d-SHA1"). The version published to the
// parameter store is the tag with the suffix stripped.
package versions

import (
	"strings"
)

// VersionTagSuffix marks a tag as carrying the artifact version.
const VersionTagSuffix = "-SHA1"

// ResolvedVersions maps artifact name to its resolved version string.
type ResolvedVersions map[string]string

// ArtifactFilters carries the per-artifact tag requirements: every filter
// tag must be present on a candidate's tag set for it to qualify.
type ArtifactFilters struct {
	TagFilters []string
}

// TryExtractVersion strips the reserved suffix from a version tag. The
// second return is false when the tag does not carry the suffix.
func TryExtractVersion(tag string) (string, bool) {
	if !strings.HasSuffix(tag, VersionTagSuffix) {
		return "", false
	}
	return strings.TrimSuffix(tag, VersionTagSuffix), true
}

// VersionTags returns the versions extractable from a tag set, preserving
// input order.
func VersionTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if v, ok := TryExtractVersion(t); ok {
			out = append(out, v)
		}
	}
	return out
}
