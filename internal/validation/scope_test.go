package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidScope(t *testing.T) {
	valid := []string{
		"openid",
		"read:user",
		"user:email",
		"https://www.googleapis.com/auth/userinfo.email",
		"a",
		strings.Repeat("s", 256),
	}
	for _, s := range valid {
		assert.True(t, ValidScope(s), s)
	}

	invalid := []string{
		"",
		"openid email",
		`say"hi"`,
		`back\\slash`,
		"tab\there",
		"ñandú",
		strings.Repeat("s", 257),
	}
	for _, s := range invalid {
		assert.False(t, ValidScope(s), s)
	}
}

func TestInvalidScopes(t *testing.T) {
	assert.Nil(t, InvalidScopes([]string{"openid", "email", "profile"}))
	assert.Equal(t, []string{"bad scope", ""}, InvalidScopes([]string{"openid", "bad scope", ""}))
}
