package pop3

import (
	"mime"
	"net/mail"
	"strconv"
	"time"

	"github.com/knadh/go-pop3"
	"github.com/pkg/errors"

	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/logger"
	"github.com/curlew-mail/curlew/internal/models"

	"github.com/curlew-mail/curlew/interfaces"
)

// Session is an authenticated POP3 connection. POP3 has no folders and no
// server-side flags, so the single virtual folder is INBOX, read state is
// tracked by the caller, and deletions are staged with DELE and only take
// effect when the session ends with QUIT.
type Session struct {
	conn  *pop3.Conn
	log   logger.Logger
	state interfaces.SessionState
}

// Connect dials the POP3 server and authenticates. The ssl flag on the
// account selects implicit TLS.
func Connect(account *models.Account, timeout time.Duration, log logger.Logger) (*Session, error) {
	recv := account.POP3

	p := pop3.New(pop3.Opt{
		Host:        recv.Host,
		Port:        recv.Port,
		TLSEnabled:  recv.SSL,
		DialTimeout: timeout,
	})

	conn, err := p.NewConn()
	if err != nil {
		return nil, errs.ClassifyDial(err, recv.Addr())
	}

	s := &Session{conn: conn, log: log, state: interfaces.StateConnected}

	if err := conn.Auth(account.Email, account.Password); err != nil {
		conn.Quit()
		s.state = interfaces.StateDisconnected
		return nil, errors.Wrapf(errs.ErrAuth, "login as %s: %v", account.Email, err)
	}
	s.state = interfaces.StateSelected

	log.Debugf("connected to pop3 server %s as %s", recv.Addr(), account.Email)
	return s, nil
}

func (s *Session) Capabilities() interfaces.Capabilities {
	return interfaces.Capabilities{ServerFlags: false, Folders: false}
}

func (s *Session) State() interfaces.SessionState {
	return s.state
}

// Folders reports the single virtual folder a POP3 mailbox exposes.
func (s *Session) Folders() ([]models.Folder, error) {
	if s.state == interfaces.StateDisconnected {
		return nil, errors.Wrap(errs.ErrState, "session is closed")
	}
	return []models.Folder{{Name: "INBOX", Selectable: true}}, nil
}

// List fetches message summaries, newest first, at most limit entries.
// Summaries come from TOP with zero body lines so listing does not pull
// full message content. Only INBOX exists on POP3.
func (s *Session) List(folder string, limit int) ([]*models.Message, error) {
	if s.state == interfaces.StateDisconnected {
		return nil, errors.Wrap(errs.ErrState, "session is closed")
	}
	if name, ok := models.ResolveFolder(folder); !ok || name != "INBOX" {
		return nil, errors.Wrapf(errs.ErrNotFound, "folder %s", folder)
	}

	ids, err := s.conn.List(0)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrProtocol, "list: %v", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	var result []*models.Message
	// newest messages carry the highest numbers, so walk downwards
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i].ID
		entity, err := s.conn.Top(id, 0)
		if err != nil {
			return nil, errors.Wrapf(errs.ErrProtocol, "top %d: %v", id, err)
		}

		msg := &models.Message{ID: strconv.Itoa(id)}
		header := entity.Header
		msg.Subject = decodedHeader(header.Get("Subject"))
		if from := header.Get("From"); from != "" {
			if addr, err := mail.ParseAddress(from); err == nil {
				msg.From = addr.Address
				msg.FromName = addr.Name
			} else {
				msg.From = from
			}
		}
		if date := header.Get("Date"); date != "" {
			if t, err := mail.ParseDate(date); err == nil {
				msg.Date = t
			}
		}
		result = append(result, msg)
	}
	return result, nil
}

// FetchRaw downloads the full raw bytes of a message by its list number.
func (s *Session) FetchRaw(id string) ([]byte, error) {
	num, err := s.parseID(id)
	if err != nil {
		return nil, err
	}

	buf, err := s.conn.RetrRaw(num)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrNotFound, "message %s: %v", id, err)
	}
	return buf.Bytes(), nil
}

// MarkRead is not supported by the protocol; read state for POP3 accounts
// lives with the caller.
func (s *Session) MarkRead(id string) error {
	return errors.Wrap(errs.ErrProtocol, "pop3 has no server-side read flags")
}

// MarkUnread is not supported by the protocol.
func (s *Session) MarkUnread(id string) error {
	return errors.Wrap(errs.ErrProtocol, "pop3 has no server-side read flags")
}

// Delete stages a message for deletion. The server drops it at QUIT; until
// then the session no longer serves the staged message.
func (s *Session) Delete(id string) error {
	num, err := s.parseID(id)
	if err != nil {
		return err
	}
	if err := s.conn.Dele(num); err != nil {
		return errors.Wrapf(errs.ErrNotFound, "message %s: %v", id, err)
	}
	return nil
}

// Close issues QUIT, which commits any staged deletions.
func (s *Session) Close() error {
	if s.state == interfaces.StateDisconnected {
		return nil
	}
	s.state = interfaces.StateDisconnected
	if err := s.conn.Quit(); err != nil {
		return errors.Wrapf(errs.ErrConnection, "quit: %v", err)
	}
	return nil
}

func (s *Session) parseID(id string) (int, error) {
	if s.state == interfaces.StateDisconnected {
		return 0, errors.Wrap(errs.ErrState, "session is closed")
	}
	num, err := strconv.Atoi(id)
	if err != nil || num < 1 {
		return 0, errors.Wrapf(errs.ErrNotFound, "invalid message id %q", id)
	}
	return num, nil
}

func decodedHeader(value string) string {
	if value == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	if decoded, err := dec.DecodeHeader(value); err == nil {
		return decoded
	}
	return value
}

var _ interfaces.Session = (*Session)(nil)
