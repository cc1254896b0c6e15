package logger

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"john@example.com", "jo***@example.com"},
		{"a@example.com", "a***@example.com"},
		{"not-an-email", "***"},
		{"@example.com", "***"},
	}
	for _, c := range cases {
		if got := MaskEmail(c.in); got != c.want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStateHashNeverLeaksToken(t *testing.T) {
	tok := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	f := StateHash(tok)
	if len(f.String) != 12 {
		t.Fatalf("expected 12 hex chars, got %q", f.String)
	}
	if f.String == tok[:12] {
		t.Fatalf("state hash must not be a token prefix")
	}
}
