// Package schemafmt checks the format version carried by graph documents.
package schemafmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// SupportedGraphMajor is the only graph format major version accepted.
	SupportedGraphMajor = 1

	// CurrentGraphVersion is written by graph serializers.
	CurrentGraphVersion = "1.0.0"
)

var semverPattern = regexp.MustCompile(
	`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)` +
		`(?:-((?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*)` +
		`(?:\.(?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*))*))?` +
		`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`,
)

// Major parses version as SemVer 2.0.0 and returns its major component.
func Major(version string) (int, error) {
	v := strings.TrimSpace(version)
	match := semverPattern.FindStringSubmatch(v)
	if match == nil {
		return 0, fmt.Errorf("version %q must be a valid semantic version (MAJOR.MINOR.PATCH)", version)
	}
	major, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("parsing version major: %w", err)
	}
	return major, nil
}

// ValidateVersion ensures version is valid SemVer with a supported major.
// An empty version is accepted and means the document predates versioning.
func ValidateVersion(version string, supportedMajor int) error {
	if strings.TrimSpace(version) == "" {
		return nil
	}
	major, err := Major(version)
	if err != nil {
		return err
	}
	if major != supportedMajor {
		return fmt.Errorf("version %q has unsupported major %d (supported: %d.x.x)", version, major, supportedMajor)
	}
	return nil
}
