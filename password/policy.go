package password

import "unicode"

// MinLength is the floor the strength policy enforces.
const MinLength = 8

// Strong reports whether the password satisfies the platform policy: at least
// MinLength characters with an upper-case letter, a lower-case letter, a
// digit, and a symbol.
func Strong(password string) bool {
	if len([]rune(password)) < MinLength {
		return false
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
