// Package domain contains core concepts of the messaging system.
// This file defines the Subject identifier used as the fan-out key.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"profilebook/errors"
	"strings"
	"unicode"
)

const maxSubjectLength = 128

// SubjectID identifies an authenticated actor. It is immutable for a session.
type SubjectID string

func (s SubjectID) String() string {
	return string(s)
}

// ParseSubjectID validates a raw identifier. Separators used in store keys,
// whitespace and control characters are rejected.
func ParseSubjectID(raw string) (SubjectID, error) {
	if raw == "" || len(raw) > maxSubjectLength {
		return "", errors.ErrInvalidSubject
	}
	if strings.ContainsAny(raw, ":|") {
		return "", errors.ErrInvalidSubject
	}
	for _, r := range raw {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", errors.ErrInvalidSubject
		}
	}
	return SubjectID(raw), nil
}
