package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// credentialPatterns keep their first capture group and redact the rest of the match.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(x-ebirdapitoken[\s:=]+)([^;,\s]+)`),
	regexp.MustCompile(`(?i)((api[_-]?key|token|secret|passw(or)?d)[\s:=]+)([^;,\s]{5,})`),
	regexp.MustCompile(`(?i)(data:image/[a-z]+;base64,)([A-Za-z0-9+/=]+)`),
}

// sensitiveKeyParts mark field keys whose whole value is withheld.
var sensitiveKeyParts = []string{
	"password", "passwd", "secret", "credential", "token", "api_key", "apikey", "authorization",
}

// RedactSensitiveData masks credentials and inline base64 images in free text.
func RedactSensitiveData(input string) string {
	for _, p := range credentialPatterns {
		if input == "" {
			break
		}
		input = p.ReplaceAllString(input, "${1}"+redacted)
	}
	return input
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

// redactField masks f when its key names a credential or its text contains one.
func redactField(f Field) Field {
	s, ok := f.Value.(string)
	if !ok || s == "" {
		return f
	}
	if isSensitiveKey(f.Key) {
		return Field{Key: f.Key, Value: redacted}
	}
	return Field{Key: f.Key, Value: RedactSensitiveData(s)}
}
