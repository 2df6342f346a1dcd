package password

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// PasswordPolicy defines the requirements for password complexity.
// Zero values disable the corresponding check.
type PasswordPolicy struct {
	MinLength          int
	MaxLength          int
	RequireUppercase   bool
	RequireLowercase   bool
	RequireDigit       bool
	RequireSpecialChar bool
}

// DefaultPasswordPolicy requires at least 8 characters and one special character.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:          8,
		MaxLength:          128,
		RequireSpecialChar: true,
	}
}

// PolicyChecker checks passwords against a PasswordPolicy
type PolicyChecker struct {
	policy PasswordPolicy
}

// NewPolicyChecker creates a checker. A nil policy uses DefaultPasswordPolicy.
func NewPolicyChecker(policy *PasswordPolicy) *PolicyChecker {
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	return &PolicyChecker{policy: *policy}
}

// Policy returns a copy of the policy being enforced
func (pc *PolicyChecker) Policy() PasswordPolicy {
	return pc.policy
}

// Check returns a descriptive error for the first rule the password breaks
func (pc *PolicyChecker) Check(password string) error {
	length := utf8.RuneCountInString(password)
	if pc.policy.MinLength > 0 && length < pc.policy.MinLength {
		return fmt.Errorf("password must be at least %d characters long", pc.policy.MinLength)
	}
	if pc.policy.MaxLength > 0 && length > pc.policy.MaxLength {
		return fmt.Errorf("password must be at most %d characters long", pc.policy.MaxLength)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}

	if pc.policy.RequireUppercase && !upper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if pc.policy.RequireLowercase && !lower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if pc.policy.RequireDigit && !digit {
		return fmt.Errorf("password must contain at least one digit")
	}
	if pc.policy.RequireSpecialChar && !special {
		return fmt.Errorf("password must contain at least one special character")
	}
	return nil
}
