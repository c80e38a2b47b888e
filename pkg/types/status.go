package types

import (
	"fmt"
	"strings"
)

const (
	// StatusOK means every threshold of the check is satisfied.
	StatusOK Status = iota

	// StatusWarn means the WARN threshold bucket is exceeded.
	StatusWarn

	// StatusError means the ERROR threshold bucket is exceeded.
	StatusError

	// StatusCritical means the CRITICAL threshold bucket is exceeded.
	StatusCritical
)

// Status is the severity of a check result. Values are ordered so that a
// larger Status is always more severe: OK < WARN < ERROR < CRITICAL.
type Status int8

// ParseStatus parses the text form of a Status. It accepts any letter case.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OK":
		return StatusOK, nil
	case "WARN", "WARNING":
		return StatusWarn, nil
	case "ERROR":
		return StatusError, nil
	case "CRITICAL":
		return StatusCritical, nil
	default:
		return StatusOK, fmt.Errorf("unknown status %q", raw)
	}
}

// String returns OK, WARN, ERROR or CRITICAL.
func (s Status) String() string {
	switch s {
	case StatusWarn:
		return "WARN"
	case StatusError:
		return "ERROR"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "OK"
	}
}

// MoreSevereThan reports whether s ranks strictly above other.
func (s Status) MoreSevereThan(other Status) bool {
	return s > other
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	st, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
