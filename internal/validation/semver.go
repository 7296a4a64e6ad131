// semver.go provides semantic version validation, comparison, and the increment rule
// used when republishing an entry or auto-versioning a GitHub sync.
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// IncrementKind selects which component of a version an increment bumps.
type IncrementKind string

const (
	IncrementMajor IncrementKind = "major"
	IncrementMinor IncrementKind = "minor"
	IncrementPatch IncrementKind = "patch"
)

// ValidateSemver validates that a version string is valid semantic versioning.
func ValidateSemver(versionStr string) error {
	if _, err := version.NewVersion(versionStr); err != nil {
		return fmt.Errorf("invalid semantic version: %w", err)
	}
	return nil
}

// CompareSemver compares two semantic versions.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2.
func CompareSemver(v1Str, v2Str string) (int, error) {
	v1, err := version.NewVersion(v1Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}

	v2, err := version.NewVersion(v2Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}

	return v1.Compare(v2), nil
}

// IncrementVersion bumps one component of an "X.Y.Z" version string:
//
//	major → (X+1).0.0
//	minor → X.(Y+1).0
//	patch → X.Y.(Z+1)
//
// An unrecognised kind is treated as patch. The result always strictly exceeds
// the input under semantic-version ordering.
func IncrementVersion(v string, kind IncrementKind) (string, error) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("version %q is not in X.Y.Z form", v)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("version %q has non-numeric component %q", v, p)
		}
		nums[i] = n
	}

	switch kind {
	case IncrementMajor:
		return fmt.Sprintf("%d.0.0", nums[0]+1), nil
	case IncrementMinor:
		return fmt.Sprintf("%d.%d.0", nums[0], nums[1]+1), nil
	default:
		return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]+1), nil
	}
}
