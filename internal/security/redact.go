// Package security masks credentials before they reach logs or terminals.
package security

import (
	"net/url"
	"regexp"
	"strings"
)

// keyValuePattern matches secrets in key=value connection strings such as
// "host=db password=secret".
var keyValuePattern = regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|token)=("[^"]*"|'[^']*'|\S+)`)

// MaskCredential masks a credential, keeping a few characters for identification.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact hides passwords in URLs (postgres://u:p@h, nats://u:p@h) and in
// key=value connection strings. Other input is returned unchanged.
func Redact(s string) string {
	if s == "" {
		return s
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
			}
			q := u.Query()
			for key := range q {
				if isSensitiveKey(key) {
					q.Set(key, "xxxxx")
				}
			}
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return keyValuePattern.ReplaceAllString(s, "$1=xxxxx")
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(key) {
	case "password", "passwd", "pwd", "secret", "token":
		return true
	}
	return false
}
