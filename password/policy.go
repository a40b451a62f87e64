package password

import "unicode"

// Policy is the strength requirement applied at registration and again at
// reset confirmation, so a tampered client cannot skip it.
type Policy struct {
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// DefaultPolicy matches the mobile app's signup form: at least 8 characters
// with one uppercase letter, one lowercase letter, and one digit.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Check reports whether candidate satisfies the policy. Length is counted in
// runes so multibyte characters are not double-counted.
func (p Policy) Check(candidate string) bool {
	var (
		length int
		upper  bool
		lower  bool
		digit  bool
	)

	for _, r := range candidate {
		length++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	if length < p.MinLength {
		return false
	}
	if p.RequireUpper && !upper {
		return false
	}
	if p.RequireLower && !lower {
		return false
	}
	if p.RequireDigit && !digit {
		return false
	}
	return true
}
