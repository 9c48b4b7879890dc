package imap

import (
	"crypto/tls"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/logger"
	"github.com/curlew-mail/curlew/internal/models"

	"github.com/curlew-mail/curlew/interfaces"
)

const logoutTimeout = 5 * time.Second

// Session is an authenticated IMAP connection. Message IDs handed out by
// List are server UIDs scoped to the selected folder, so every message
// operation runs against the UID variant of the command.
type Session struct {
	client   *client.Client
	log      logger.Logger
	state    interfaces.SessionState
	folder   string
	timeout  time.Duration
	username string
}

// Connect dials the IMAP server, authenticates and selects INBOX. The ssl
// flag on the account selects implicit TLS; without it the connection is
// plaintext, which is only sensible against a local test server.
func Connect(account *models.Account, timeout time.Duration, log logger.Logger) (*Session, error) {
	recv := account.IMAP
	addr := recv.Addr()

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error
	if recv.SSL {
		tlsConfig := &tls.Config{ServerName: recv.Host}
		c, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, errs.ClassifyDial(err, addr)
	}

	s := &Session{
		client:   c,
		log:      log,
		state:    interfaces.StateConnected,
		timeout:  timeout,
		username: account.Email,
	}

	c.Timeout = timeout
	if err := c.Login(account.Email, account.Password); err != nil {
		s.shutdown()
		return nil, errors.Wrapf(errs.ErrAuth, "login as %s: %v", account.Email, err)
	}
	s.state = interfaces.StateAuthenticated
	c.Timeout = 0

	if err := s.Select("INBOX"); err != nil {
		s.shutdown()
		return nil, err
	}

	log.Debugf("connected to imap server %s as %s", addr, account.Email)
	return s, nil
}

func (s *Session) Capabilities() interfaces.Capabilities {
	return interfaces.Capabilities{ServerFlags: true, Folders: true}
}

func (s *Session) State() interfaces.SessionState {
	return s.state
}

// SelectedFolder reports the folder the session currently operates on.
func (s *Session) SelectedFolder() string {
	return s.folder
}

// Select switches the session to a folder. Unknown folders come back as
// ErrNotFound so callers can fall back to INBOX.
func (s *Session) Select(folder string) error {
	if s.state == interfaces.StateDisconnected {
		return errors.Wrap(errs.ErrState, "session is closed")
	}
	folder, _ = models.ResolveFolder(folder)
	if _, err := s.client.Select(folder, false); err != nil {
		return errors.Wrapf(errs.ErrNotFound, "select folder %s: %v", folder, err)
	}
	s.folder = folder
	s.state = interfaces.StateSelected
	return nil
}

// Folders lists the folders available on the server.
func (s *Session) Folders() ([]models.Folder, error) {
	if s.state == interfaces.StateDisconnected {
		return nil, errors.Wrap(errs.ErrState, "session is closed")
	}

	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var folders []models.Folder
	for m := range mailboxes {
		selectable := true
		for _, attr := range m.Attributes {
			if attr == imap.NoSelectAttr {
				selectable = false
				break
			}
		}
		folders = append(folders, models.Folder{Name: m.Name, Selectable: selectable})
	}
	if err := <-done; err != nil {
		return nil, errors.Wrapf(errs.ErrProtocol, "listing folders: %v", err)
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// List fetches message summaries from a folder, newest first, at most limit
// entries. A limit of zero or less means everything in the folder.
func (s *Session) List(folder string, limit int) ([]*models.Message, error) {
	if s.state == interfaces.StateDisconnected {
		return nil, errors.Wrap(errs.ErrState, "session is closed")
	}
	// re-select so the message count reflects expunges and new arrivals
	if err := s.Select(folder); err != nil {
		return nil, err
	}

	status := s.client.Mailbox()
	if status == nil {
		return nil, errors.Wrap(errs.ErrState, "no folder selected")
	}
	total := status.Messages
	if total == 0 {
		return nil, nil
	}

	from := uint32(1)
	if limit > 0 && total > uint32(limit) {
		from = total - uint32(limit) + 1
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, total)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid}
	messages := make(chan *imap.Message, 20)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqSet, items, messages)
	}()

	var result []*models.Message
	for msg := range messages {
		result = append(result, summaryFromFetch(msg))
	}
	if err := <-done; err != nil {
		return nil, errors.Wrapf(errs.ErrProtocol, "fetching message list: %v", err)
	}

	// newest first
	sort.Slice(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	return result, nil
}

// FetchRaw downloads the full raw bytes of a message by UID.
func (s *Session) FetchRaw(id string) ([]byte, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	if s.state != interfaces.StateSelected {
		return nil, errors.Wrap(errs.ErrState, "no folder selected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		if body := msg.GetBody(section); body != nil {
			if buf, err := io.ReadAll(body); err == nil {
				raw = buf
			}
		}
	}
	if err := <-done; err != nil {
		return nil, errors.Wrapf(errs.ErrProtocol, "fetching message %s: %v", id, err)
	}
	if raw == nil {
		return nil, errors.Wrapf(errs.ErrNotFound, "message %s", id)
	}
	return raw, nil
}

// MarkRead sets the \Seen flag on a message.
func (s *Session) MarkRead(id string) error {
	return s.storeFlags(id, imap.AddFlags, imap.SeenFlag)
}

// MarkUnread clears the \Seen flag on a message.
func (s *Session) MarkUnread(id string) error {
	return s.storeFlags(id, imap.RemoveFlags, imap.SeenFlag)
}

// Delete flags a message \Deleted and expunges the folder.
func (s *Session) Delete(id string) error {
	if err := s.storeFlags(id, imap.AddFlags, imap.DeletedFlag); err != nil {
		return err
	}
	if err := s.client.Expunge(nil); err != nil {
		return errors.Wrapf(errs.ErrProtocol, "expunging folder %s: %v", s.folder, err)
	}
	return nil
}

// Close logs out of the server. The logout itself is bounded so a stuck
// server cannot hang shutdown.
func (s *Session) Close() error {
	if s.state == interfaces.StateDisconnected {
		return nil
	}
	err := s.shutdown()
	return err
}

func (s *Session) shutdown() error {
	s.client.Timeout = logoutTimeout

	done := make(chan error, 1)
	go func() {
		done <- s.client.Logout()
	}()

	var err error
	select {
	case err = <-done:
	case <-time.After(logoutTimeout):
		s.log.Warnf("imap logout for %s timed out", s.username)
		err = s.client.Terminate()
	}
	s.state = interfaces.StateDisconnected
	return err
}

func (s *Session) storeFlags(id string, op imap.FlagsOp, flag string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if s.state != interfaces.StateSelected {
		return errors.Wrap(errs.ErrState, "no folder selected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(op, true)
	flags := []interface{}{flag}

	if err := s.client.UidStore(seqSet, item, flags, nil); err != nil {
		return errors.Wrapf(errs.ErrProtocol, "updating flags on message %s: %v", id, err)
	}
	return nil
}

func summaryFromFetch(msg *imap.Message) *models.Message {
	out := &models.Message{
		ID: strconv.FormatUint(uint64(msg.Uid), 10),
	}

	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			out.Seen = true
			break
		}
	}

	env := msg.Envelope
	if env == nil {
		return out
	}
	out.Subject = env.Subject
	out.Date = env.Date
	if len(env.From) > 0 {
		out.From = env.From[0].Address()
		out.FromName = env.From[0].PersonalName
	}
	for _, addr := range env.To {
		out.To = append(out.To, addr.Address())
	}
	for _, addr := range env.Cc {
		out.Cc = append(out.Cc, addr.Address())
	}
	return out
}

func parseUID(id string) (uint32, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil || uid == 0 {
		return 0, errors.Wrapf(errs.ErrNotFound, "invalid message id %q", id)
	}
	return uint32(uid), nil
}

var _ interfaces.Session = (*Session)(nil)
