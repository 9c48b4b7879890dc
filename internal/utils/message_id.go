package utils

import (
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const messageIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateMessageID creates a unique RFC 5322 Message-ID for an outgoing
// message, scoped to the sender's domain.
func GenerateMessageID(domain string) string {
	id, err := gonanoid.Generate(messageIDAlphabet, 12)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixMicro(), id, domain)
}

// GenerateAttachmentName builds a fallback filename for a message part that
// carries no name of its own.
func GenerateAttachmentName(contentType string) string {
	id, err := gonanoid.Generate(messageIDAlphabet, 8)
	if err != nil {
		panic(err)
	}
	ext := ExtensionFromContentType(contentType)
	if ext == "" {
		return "attachment-" + id
	}
	return fmt.Sprintf("attachment-%s.%s", id, ext)
}

// DomainFromAddress returns the part after '@', or the address itself when
// it has no domain part.
func DomainFromAddress(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return address
}

// LocalPartFromAddress returns the part before '@'.
func LocalPartFromAddress(address string) string {
	if i := strings.Index(address, "@"); i > 0 {
		return address[:i]
	}
	return address
}
