// Package version parses and compares "major.minor" schema versions.
//
// Devices announce the version of their schema in the "schema" TXT record.
// A controller can only decode replies from a device whose schema shares the
// major version of the schema the controller loaded.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalid is returned for strings that are not "major.minor".
	ErrInvalid = errors.New("invalid version")

	// ErrIncompatible is returned when two schema versions differ in major
	// version.
	ErrIncompatible = errors.New("incompatible schema version")
)

// Version represents a parsed "major.minor" version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minor, ".") {
		return Version{}, fmt.Errorf("%w %q: expected major.minor", ErrInvalid, s)
	}

	ma, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("%w %q: bad major component", ErrInvalid, s)
	}

	mi, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("%w %q: bad minor component", ErrInvalid, s)
	}

	return Version{Major: uint16(ma), Minor: uint16(mi)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Less reports whether v precedes other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// Check reports whether a controller holding schema version local can talk
// to a device announcing remote. An empty remote is accepted, since the
// schema TXT record is optional.
func Check(local, remote string) error {
	if remote == "" {
		return nil
	}
	l, err := Parse(local)
	if err != nil {
		return err
	}
	r, err := Parse(remote)
	if err != nil {
		return err
	}
	if !l.Compatible(r) {
		return fmt.Errorf("%w: device has %s, controller has %s", ErrIncompatible, r, l)
	}
	return nil
}
