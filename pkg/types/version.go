package types

import (
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// InitialVersion is the version assigned to categories created from a
// template.
const InitialVersion = "1.0"

// canonical turns "1.2" into "v1.2" for the semver package.
func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ValidVersion reports whether v is a semantic version, with or without the
// leading "v" and with minor and patch optional ("1", "1.0", "1.0.3").
func ValidVersion(v string) bool {
	return v != "" && semver.IsValid(canonical(v))
}

// CompareVersions orders two schema versions. The result is -1, 0 or +1.
// Invalid versions sort before all valid ones.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// NextVersion bumps the minor component of v, keeping its shape:
// "1.0" becomes "1.1", "1.2.3" becomes "1.3.0", "2" becomes "2.1".
func NextVersion(v string) (string, error) {
	if !ValidVersion(v) {
		return "", Validationf(CodeInvalidVersion, "invalid version %q", v)
	}
	core := strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	major := parts[0]
	minor := 0
	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return "", Validationf(CodeInvalidVersion, "invalid version %q", v)
		}
		minor = n
	}
	next := major + "." + strconv.Itoa(minor+1)
	if len(parts) > 2 {
		next += ".0"
	}
	if strings.HasPrefix(v, "v") {
		next = "v" + next
	}
	return next, nil
}
