package utils

import (
	"regexp"
	"strings"
)

var subjectPrefixRegex = regexp.MustCompile(`(?i)^(Re|Fwd|Fw)(\[\d+\])?:\s*`)

// NormalizeSubject strips reply/forward prefixes like "Re:" and "Fwd:".
func NormalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for subjectPrefixRegex.MatchString(subject) {
		subject = subjectPrefixRegex.ReplaceAllString(subject, "")
		subject = strings.TrimSpace(subject)
	}
	return subject
}

// NormalizeMessageID trims whitespace and the surrounding angle brackets.
func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// IsStringInSlice reports whether needle occurs in haystack.
func IsStringInSlice(needle string, haystack []string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
