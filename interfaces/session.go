package interfaces

import (
	"github.com/curlew-mail/curlew/internal/models"
)

// Capabilities describes what a retrieval protocol can do. Callers must
// branch on these rather than assume uniform behavior: POP3 has neither
// folders nor server-side flags, so read-state there is a local concern.
type Capabilities struct {
	ServerFlags bool
	Folders     bool
}

// SessionState tracks the connection lifecycle:
// Disconnected -> Connected -> Authenticated -> Selected (IMAP only).
// Operations attempted out of the required state fail with ErrState.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnected
	StateAuthenticated
	StateSelected
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateSelected:
		return "selected"
	default:
		return "unknown"
	}
}

// Session is the unified retrieval contract over the POP3 and IMAP
// backends. A Session is exclusively owned by the caller that opened it
// until Close; it must be closed on every exit path to avoid leaking
// server-side session locks.
//
// Message ids are strings: a UID stable across sessions for IMAP, a
// 1-based sequence number valid only for this session for POP3.
type Session interface {
	Capabilities() Capabilities
	State() SessionState

	// Folders lists server folders. Requires Folders capability.
	Folders() ([]models.Folder, error)

	// List returns the newest messages of folder (headers and flags only),
	// most recent first, truncated to limit when limit > 0. POP3 ignores
	// the folder argument.
	List(folder string, limit int) ([]*models.Message, error)

	// FetchRaw retrieves the full raw message bytes for parsing.
	FetchRaw(id string) ([]byte, error)

	// MarkRead and MarkUnread toggle the server-side Seen flag. Both are
	// idempotent. Backends without ServerFlags fail with ErrProtocol.
	MarkRead(id string) error
	MarkUnread(id string) error

	// Delete removes a message. IMAP expunges immediately; POP3 marks the
	// message and the server applies it on clean Close.
	Delete(id string) error

	Close() error
}
