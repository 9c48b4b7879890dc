package mailbox

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/logger"
	"github.com/curlew-mail/curlew/internal/models"
	"github.com/curlew-mail/curlew/internal/utils"
	"github.com/curlew-mail/curlew/services/codec"

	"github.com/curlew-mail/curlew/interfaces"
)

// DefaultListLimit caps how many messages a refresh pulls from the server.
const DefaultListLimit = 50

// Model is an in-memory snapshot of one folder of a remote mailbox. It is
// the layer the UI talks to: listing, searching and flag changes run against
// the snapshot, while Refresh and Fetch go to the session underneath.
//
// For sessions without server-side flags the read state is kept locally and
// overlaid on the snapshot, so marking a POP3 message read behaves the same
// as the IMAP case from the caller's point of view.
type Model struct {
	mu        sync.RWMutex
	session   interfaces.Session
	log       logger.Logger
	folder    string
	limit     int
	messages  []*models.Message
	localSeen map[string]bool
}

func NewModel(session interfaces.Session, log logger.Logger) *Model {
	return &Model{
		session:   session,
		log:       log,
		folder:    "INBOX",
		limit:     DefaultListLimit,
		localSeen: make(map[string]bool),
	}
}

// SetLimit changes how many messages Refresh asks the server for. Zero or
// negative means no cap.
func (m *Model) SetLimit(limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
}

// Folder reports the folder the snapshot was taken from.
func (m *Model) Folder() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.folder
}

// Folders lists the folders the underlying session exposes.
func (m *Model) Folders() ([]models.Folder, error) {
	return m.session.Folders()
}

// Refresh replaces the snapshot with a fresh listing of the given folder.
// An empty folder name means INBOX; when the session has no folder support
// anything other than INBOX is rejected before touching the server.
func (m *Model) Refresh(folder string) error {
	name, ok := models.ResolveFolder(folder)
	if !ok {
		name = folder
	}
	if !m.session.Capabilities().Folders && name != "INBOX" {
		return errors.Wrapf(errs.ErrNotFound, "folder %s", folder)
	}

	m.mu.Lock()
	limit := m.limit
	m.mu.Unlock()

	messages, err := m.session.List(name, limit)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.folder = name
	m.messages = messages
	if !m.session.Capabilities().ServerFlags {
		for _, msg := range m.messages {
			if m.localSeen[msg.ID] {
				msg.Seen = true
			}
		}
	}
	return nil
}

// Messages returns the current snapshot, newest first. The slice is a copy;
// mutating it does not touch the model.
func (m *Model) Messages() []*models.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Search filters the snapshot by a case-insensitive substring match on the
// sender and subject. An empty query returns the whole snapshot.
func (m *Model) Search(query string) []*models.Message {
	if query == "" {
		return m.Messages()
	}
	needle := strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Message
	for _, msg := range m.messages {
		if strings.Contains(strings.ToLower(msg.Sender()), needle) ||
			strings.Contains(strings.ToLower(msg.From), needle) ||
			strings.Contains(strings.ToLower(msg.Subject), needle) {
			out = append(out, msg)
		}
	}
	return out
}

// Conversation returns the snapshot entries that share the given message's
// subject once reply and forward prefixes are stripped, preserving snapshot
// order.
func (m *Model) Conversation(id string) []*models.Message {
	root := m.lookup(id)
	if root == nil {
		return nil
	}
	topic := utils.NormalizeSubject(root.Subject)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Message
	for _, msg := range m.messages {
		if strings.EqualFold(utils.NormalizeSubject(msg.Subject), topic) {
			out = append(out, msg)
		}
	}
	return out
}

// Fetch downloads and parses the full message, marking it read the way the
// underlying session supports.
func (m *Model) Fetch(id string) (*models.Message, error) {
	summary := m.lookup(id)
	if summary == nil {
		return nil, errors.Wrapf(errs.ErrNotFound, "message %s", id)
	}

	raw, err := m.session.FetchRaw(id)
	if err != nil {
		return nil, err
	}
	msg, err := codec.Parse(raw)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	msg.Seen = true
	if msg.Date.IsZero() {
		msg.Date = summary.Date
	}

	if err := m.MarkRead(id); err != nil {
		m.log.Debugf("marking %s read after fetch: %v", id, err)
	}
	return msg, nil
}

// MarkRead flags a message as read, on the server when it supports flags
// and locally otherwise.
func (m *Model) MarkRead(id string) error {
	return m.setSeen(id, true)
}

// MarkUnread flags a message as unread.
func (m *Model) MarkUnread(id string) error {
	return m.setSeen(id, false)
}

// Delete removes the message from the server and drops it from the
// snapshot. For sessions with staged deletion the server-side removal only
// commits when the session closes.
func (m *Model) Delete(id string) error {
	if m.lookup(id) == nil {
		return errors.Wrapf(errs.ErrNotFound, "message %s", id)
	}
	if err := m.session.Delete(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			break
		}
	}
	delete(m.localSeen, id)
	return nil
}

// Close releases the underlying session.
func (m *Model) Close() error {
	return m.session.Close()
}

func (m *Model) setSeen(id string, seen bool) error {
	summary := m.lookup(id)
	if summary == nil {
		return errors.Wrapf(errs.ErrNotFound, "message %s", id)
	}

	if m.session.Capabilities().ServerFlags {
		var err error
		if seen {
			err = m.session.MarkRead(id)
		} else {
			err = m.session.MarkUnread(id)
		}
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.session.Capabilities().ServerFlags {
		if seen {
			m.localSeen[id] = true
		} else {
			delete(m.localSeen, id)
		}
	}
	for _, msg := range m.messages {
		if msg.ID == id {
			msg.Seen = seen
			break
		}
	}
	return nil
}

func (m *Model) lookup(id string) *models.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}
