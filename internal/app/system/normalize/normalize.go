// Package normalize canonicalizes user-entered identifiers before they are
// stored or compared.
package normalize

import "strings"

// Email trims and lowercases an address. Stores and the login limiter key
// on this form.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name and collapses inner runs of whitespace to a
// single space. Use text.Fold for comparison keys.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Role lowercases a role for comparison against models.Role*.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EmailLocal returns the part of a normalized address before the last "@",
// or "" when there is none.
func EmailLocal(email string) string {
	email = Email(email)
	i := strings.LastIndex(email, "@")
	if i <= 0 {
		return ""
	}
	return email[:i]
}
