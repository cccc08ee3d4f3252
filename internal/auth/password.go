package auth

import (
	"fmt"
	"strings"
	"unicode"

	"taskmanagement-api/internal/apperr"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// PasswordPolicy rejects passwords that are too short or lack character
// variety.
type PasswordPolicy struct {
	MinLength int
}

// Check returns a WeakPassword error listing every unmet rule, or nil.
func (p PasswordPolicy) Check(password string) error {
	var problems []string

	if len([]rune(password)) < p.MinLength {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if len(password) > maxPasswordBytes {
		problems = append(problems, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		problems = append(problems, "must contain an upper-case letter")
	}
	if !hasLower {
		problems = append(problems, "must contain a lower-case letter")
	}
	if !hasDigit {
		problems = append(problems, "must contain a digit")
	}

	if len(problems) == 0 {
		return nil
	}
	return apperr.WithFields(apperr.CodeWeakPassword, "password does not meet policy", map[string]string{
		"password": strings.Join(problems, "; "),
	})
}
