package log

import (
	"regexp"
	"strings"
)

var sensitiveKeywords = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key",
	"token", "secret", "authorization",
	"credential", "private_key", "privatekey",
	"dsn",
}

// githubTokenPattern matches classic (ghp_, gho_, ghu_, ghs_, ghr_) and fine-grained GitHub tokens.
var githubTokenPattern = regexp.MustCompile(`\b(?:gh[pousr]_[A-Za-z0-9]{16,}|github_pat_[A-Za-z0-9_]{20,})`)

// SanitizeField checks if the key contains sensitive keywords and sanitizes the value.
// GitHub tokens are masked in every value regardless of the key.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	if strings.Contains(lowerKey, "email") {
		return sanitizeEmail(value)
	}

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return sanitizeToken(strings.TrimPrefix(value, "Bearer "))
		}
	}

	return SanitizeValue(value)
}

// SanitizeValue masks GitHub tokens embedded in free text such as error messages or URLs.
func SanitizeValue(value string) string {
	if !strings.Contains(value, "gh") && !strings.Contains(value, "github_pat_") {
		return value
	}
	return githubTokenPattern.ReplaceAllStringFunc(value, sanitizeToken)
}

// sanitizeToken masks token/password values showing only first 4 and last 4 characters
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// sanitizeEmail masks email showing first 3 characters + @domain
func sanitizeEmail(value string) string {
	parts := strings.Split(value, "@")
	if len(parts) != 2 {
		return strings.Repeat("*", len(value))
	}

	localPart, domain := parts[0], parts[1]
	if len(localPart) <= 3 {
		if len(localPart) == 0 {
			return "@" + domain
		}
		return string(localPart[0]) + strings.Repeat("*", len(localPart)-1) + "@" + domain
	}
	return localPart[:3] + "***@" + domain
}
