package normalize

import "testing"

func TestNormalizers(t *testing.T) {
	tests := []struct {
		fn    string
		apply func(string) string
		in    string
		want  string
	}{
		{"Email", Email, "  Ada@Example.Com  ", "ada@example.com"},
		{"Email", Email, "\tuser@example.com\n", "user@example.com"},
		{"Email", Email, "   ", ""},
		{"Name", Name, "  Ada   \t Lovelace ", "Ada Lovelace"},
		{"Name", Name, "\nADA\n", "ADA"},
		{"Name", Name, "", ""},
		{"Role", Role, " Admin ", "admin"},
		{"Role", Role, "MEMBER", "member"},
		{"EmailLocal", EmailLocal, "Ada@Example.com", "ada"},
		{"EmailLocal", EmailLocal, "first.last@example.com", "first.last"},
		{"EmailLocal", EmailLocal, "odd@name@example.com", "odd@name"},
		{"EmailLocal", EmailLocal, "@example.com", ""},
		{"EmailLocal", EmailLocal, "no-at-sign", ""},
	}
	for _, tt := range tests {
		if got := tt.apply(tt.in); got != tt.want {
			t.Errorf("%s(%q) = %q, want %q", tt.fn, tt.in, got, tt.want)
		}
	}
}
