package models

import (
	"strings"
	"time"
)

// Message is one entry of a listing snapshot. ID is protocol specific: a
// stable UID for IMAP, a 1-based sequence number valid only for the current
// session for POP3. Unique within one snapshot.
type Message struct {
	ID          string
	From        string
	FromName    string
	To          []string
	Cc          []string
	Subject     string
	Date        time.Time
	Seen        bool
	BodyText    string
	Attachments []Attachment
}

// Sender renders the sender for display, preferring the display name.
func (m *Message) Sender() string {
	if m.FromName != "" {
		return m.FromName + " <" + m.From + ">"
	}
	return m.From
}

// Attachment payload bytes are owned by the containing message or the
// compose buffer, never shared.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Folder struct {
	Name       string
	Selectable bool
}

// The small fixed set of folders the model recognizes by name.
var WellKnownFolders = []string{"INBOX", "Sent", "Drafts", "Trash"}

// ResolveFolder matches name case-insensitively against the well-known set.
// Unrecognized names are returned unchanged so server-advertised folders
// still work.
func ResolveFolder(name string) (string, bool) {
	if name == "" {
		return "INBOX", true
	}
	for _, known := range WellKnownFolders {
		if strings.EqualFold(name, known) {
			return known, true
		}
	}
	return name, false
}
