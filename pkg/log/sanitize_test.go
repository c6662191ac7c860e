package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeField_SensitiveKeys(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"password", "supersecret123", "supe******t123"},
		{"github_token", "abcdefghijklmnop", "abcd********mnop"},
		{"Authorization", "Bearer abcdefghijkl", "abcd****ijkl"},
		{"MYSQL_DSN", "user:pass@tcp(db)/x", "user***********b)/x"},
		{"api_key", "short", "s***t"},
		{"secret", "ab", "**"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeField(tt.key, tt.value))
		})
	}
}

func TestSanitizeField_Email(t *testing.T) {
	assert.Equal(t, "ali***@example.com", SanitizeField("email", "alice@example.com"))
	assert.Equal(t, "b**@example.com", SanitizeField("user_email", "bob@example.com"))
	assert.Equal(t, "@example.com", SanitizeField("email", "@example.com"))
	assert.Equal(t, "*******", SanitizeField("email", "invalid"))
}

func TestSanitizeField_NonSensitive(t *testing.T) {
	assert.Equal(t, "Add retry budget", SanitizeField("title", "Add retry budget"))
	assert.Equal(t, "", SanitizeField("token", ""))
}

func TestSanitizeValue_GitHubTokens(t *testing.T) {
	classic := "ghp_" + "aBcDeFgHiJkLmNoPqRsTuVwXyZ0123456789"
	fine := "github_pat_" + "11AAAAAAA0aaaaaaaaaaaa_bbbbbbbbbbbbbbbbbbbbbb"

	out := SanitizeValue("request failed: token " + classic + " rejected")
	assert.NotContains(t, out, classic)
	assert.Contains(t, out, "ghp_")
	assert.Contains(t, out, "6789")

	out = SanitizeField("error", "Bad credentials for "+fine)
	assert.NotContains(t, out, fine)
	assert.Contains(t, out, "Bad credentials for gith")

	assert.Equal(t, "ghp_short", SanitizeValue("ghp_short"))
	assert.Equal(t, "plain message", SanitizeValue("plain message"))
}

func TestSanitizeToken_EdgeCases(t *testing.T) {
	assert.Equal(t, "", sanitizeToken(""))
	assert.Equal(t, "*", sanitizeToken("a"))
	assert.Equal(t, "a******h", sanitizeToken("abcdefgh"))
	assert.Equal(t, "abcd*fghi", sanitizeToken("abcdefghi"))
}
