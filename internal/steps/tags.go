package steps

import (
	"context"
	"regexp"
	"strconv"

	"github.com/cucumber/godog"
)

// Minor versions that may appear in a not-python-3.N tag.
const (
	MinExcludedMinor = 5
	MaxExcludedMinor = 100
)

var notPythonTag = regexp.MustCompile(`^@?not-python-3\.([0-9]+)$`)

// ExcludedVersion returns the runtime version a not-python-3.N tag
// excludes. Tags outside 3.5 to 3.100, or with leading zeros, exclude
// nothing.
func ExcludedVersion(tag string) (string, bool) {
	m := notPythonTag.FindStringSubmatch(tag)
	if m == nil {
		return "", false
	}
	minor, err := strconv.Atoi(m[1])
	if err != nil || strconv.Itoa(minor) != m[1] {
		return "", false
	}
	if minor < MinExcludedMinor || minor > MaxExcludedMinor {
		return "", false
	}
	return "3." + m[1], true
}

// ShouldSkip reports whether any tag excludes version.
func ShouldSkip(tags []string, version string) bool {
	for _, tag := range tags {
		if excluded, ok := ExcludedVersion(tag); ok && excluded == version {
			return true
		}
	}
	return false
}

// Excluded reports whether the scenario's tags exclude version.
func Excluded(sc *godog.Scenario, version string) bool {
	return ShouldSkip(tagNames(sc), version)
}

// SkipHook skips scenarios whose tags exclude version.
func SkipHook(version string) godog.BeforeScenarioHook {
	return func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		if Excluded(sc, version) {
			return ctx, godog.ErrSkip
		}
		return ctx, nil
	}
}

func tagNames(sc *godog.Scenario) []string {
	if sc == nil {
		return nil
	}
	names := make([]string, 0, len(sc.Tags))
	for _, t := range sc.Tags {
		names = append(names, t.Name)
	}
	return names
}
