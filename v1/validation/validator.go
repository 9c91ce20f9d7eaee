package validation

import (
	"regexp"
	"unicode/utf8"
)

// Validation messages reported to the submitter
const (
	ErrMsgFullName = "Full name must be at least 2 characters"
	ErrMsgEmail    = "Valid email is required"
)

// MinFullNameLength is the minimum number of characters in full_name
const MinFullNameLength = 2

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// ValidationResult reports every rule violation of a submission, in rule order
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// ValidateMember checks a raw signup payload. All rules are evaluated so the
// caller can correct every field in one round trip. Non-string values are
// treated as absent.
func ValidateMember(data map[string]any) ValidationResult {
	errs := []string{}

	fullName, ok := stringField(data, "full_name")
	if !ok || utf8.RuneCountInString(fullName) < MinFullNameLength {
		errs = append(errs, ErrMsgFullName)
	}

	email, ok := stringField(data, "email")
	if !ok || !IsEmailShaped(email) {
		errs = append(errs, ErrMsgEmail)
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// IsEmailShaped reports whether s contains a local@domain.tld shape
func IsEmailShaped(s string) bool {
	return emailPattern.MatchString(s)
}

func stringField(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
