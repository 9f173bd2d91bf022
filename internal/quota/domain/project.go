package domain

import (
	"regexp"
	"strings"
	"time"
)

// DateLayout is the only accepted expiration date format.
const DateLayout = "2006-01-02"

// Project ids are passed to the privileged quota tool and stored in the
// colon-separated expiration file, so ':' and a leading '-' are rejected.
var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,254}$`)

// NormalizeProjectID trims and validates a project identifier.
func NormalizeProjectID(value string) (string, error) {
	id := strings.TrimSpace(value)
	if !projectIDPattern.MatchString(id) {
		return "", ErrInvalidProject
	}
	return id, nil
}

// NormalizeDate trims and validates an expiration date.
func NormalizeDate(value string) (string, error) {
	date := strings.TrimSpace(value)
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", ErrInvalidDate
	}
	return date, nil
}
