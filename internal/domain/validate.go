package domain

import (
	"errors"
	"regexp"
	"strings"
)

// ValidationError marks input problems detected before any write. Handlers
// map these to 400 responses with the message verbatim.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Invalid returns a new validation error with a user-facing message.
func Invalid(msg string) error { return &ValidationError{msg: msg} }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Permissive local@domain.tld shape check, same as the email endpoints use.
// Intentionally not full RFC 5322.
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool { return emailRe.MatchString(s) }

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Loose phone check: digits, spaces, and common separators, at least 7 chars.
var phoneRe = regexp.MustCompile(`^[0-9+\-\s()]{7,}$`)

// ValidPhone reports whether s is an acceptable phone number.
func ValidPhone(s string) bool { return phoneRe.MatchString(s) }

// CheckPassword enforces the password policy. Leading or trailing whitespace
// is rejected with a corrective message instead of being trimmed silently:
// trimming could let a user set a password they cannot retype.
func CheckPassword(pwd string) error {
	if pwd != strings.TrimSpace(pwd) {
		return Invalid("Password cannot start or end with spaces. Please retype it.")
	}
	if len(pwd) < 8 {
		return Invalid("Password must be at least 8 characters.")
	}
	return nil
}
