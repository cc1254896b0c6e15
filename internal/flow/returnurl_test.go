package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeReturnURL(t *testing.T) {
	cases := map[string]string{
		"":                       "/",
		"/dashboard":             "/dashboard",
		"/a?b=c":                 "/a?b=c",
		"/a#frag":                "/a",
		"dashboard":              "/",
		"//evil.example/x":       "/",
		"/\\evil.example":        "/",
		"https://evil.example/x": "/",
		"javascript:alert(1)":    "/",
		"/ok\r\nSet-Cookie: x=1": "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeReturnURL(in), "input %q", in)
	}
}
