package streams

import (
	"github.com/pkg/errors"
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^\w{3,24}$`)

// ValidateUsername returns the canonical lowercase form of raw or ErrInvalidUsername.
func ValidateUsername(raw string) (string, error) {
	if !usernamePattern.MatchString(raw) {
		return "", errors.Wrapf(ErrInvalidUsername, "%q", raw)
	}
	return strings.ToLower(raw), nil
}
