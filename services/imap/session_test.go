package imap

import (
	"bytes"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/logger"
	"github.com/curlew-mail/curlew/internal/models"

	"github.com/curlew-mail/curlew/interfaces"
)

// The memory backend ships with one user ("username"/"password") whose
// INBOX holds a single seen message.
func startServer(t *testing.T) (*memory.Backend, int) {
	t.Helper()

	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go s.Serve(listener)
	t.Cleanup(func() { s.Close() })

	return be, listener.Addr().(*net.TCPAddr).Port
}

func testAccount(port int) *models.Account {
	return &models.Account{
		Email:        "username",
		Password:     "password",
		RecvProtocol: models.ProtocolIMAP,
		IMAP:         models.ReceiveConfig{Host: "127.0.0.1", Port: port, SSL: false},
	}
}

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	l.InitLogger()
	return l
}

func connect(t *testing.T, port int) *Session {
	t.Helper()
	session, err := Connect(testAccount(port), 5*time.Second, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

// appendMessage adds a message to the backend user's INBOX directly.
func appendMessage(t *testing.T, be *memory.Backend, from, subject, body string, date time.Time) {
	t.Helper()

	user, err := be.Login(nil, "username", "password")
	require.NoError(t, err)
	mbox, err := user.GetMailbox("INBOX")
	require.NoError(t, err)

	raw := fmt.Sprintf("From: %s\r\nTo: username@example.org\r\nSubject: %s\r\nDate: %s\r\n\r\n%s\r\n",
		from, subject, date.Format(time.RFC1123Z), body)
	require.NoError(t, mbox.CreateMessage(nil, date, bytes.NewBufferString(raw)))
}

func TestConnectSelectsInbox(t *testing.T) {
	_, port := startServer(t)
	session := connect(t, port)

	assert.Equal(t, interfaces.StateSelected, session.State())
	assert.Equal(t, "INBOX", session.SelectedFolder())
	assert.True(t, session.Capabilities().ServerFlags)
	assert.True(t, session.Capabilities().Folders)
}

func TestConnectBadCredentials(t *testing.T) {
	_, port := startServer(t)

	account := testAccount(port)
	account.Password = "wrong"

	_, err := Connect(account, 5*time.Second, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAuth))
}

func TestConnectRefused(t *testing.T) {
	// nothing listens on this port
	account := testAccount(1)

	_, err := Connect(account, time.Second, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConnection))
}

func TestFolders(t *testing.T) {
	_, port := startServer(t)
	session := connect(t, port)

	folders, err := session.Folders()
	require.NoError(t, err)

	var names []string
	for _, f := range folders {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "INBOX")
}

func TestListNewestFirst(t *testing.T) {
	be, port := startServer(t)
	appendMessage(t, be, "old@example.org", "older message", "first body",
		time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	appendMessage(t, be, "new@example.org", "newer message", "second body",
		time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	session := connect(t, port)

	// a limit above the folder size returns everything
	messages, err := session.List("INBOX", 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, "newer message", messages[0].Subject)
	assert.Equal(t, "new@example.org", messages[0].From)
	assert.False(t, messages[0].Seen)
	for _, msg := range messages {
		assert.NotEmpty(t, msg.ID)
	}
}

func TestListHonorsLimit(t *testing.T) {
	be, port := startServer(t)
	for i := 0; i < 4; i++ {
		appendMessage(t, be, "bulk@example.org", fmt.Sprintf("message %d", i), "body",
			time.Date(2026, 2, 1+i, 12, 0, 0, 0, time.UTC))
	}

	session := connect(t, port)

	messages, err := session.List("INBOX", 2)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestListUnknownFolder(t *testing.T) {
	_, port := startServer(t)
	session := connect(t, port)

	_, err := session.List("NoSuchFolder", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestFetchRaw(t *testing.T) {
	_, port := startServer(t)
	session := connect(t, port)

	messages, err := session.List("INBOX", 0)
	require.NoError(t, err)
	require.NotEmpty(t, messages)

	raw, err := session.FetchRaw(messages[0].ID)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject:")
}

func TestFetchRawUnknownID(t *testing.T) {
	_, port := startServer(t)
	session := connect(t, port)

	_, err := session.FetchRaw("999999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = session.FetchRaw("not-a-number")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestMarkUnreadAndRead(t *testing.T) {
	_, port := startServer(t)
	session := connect(t, port)

	messages, err := session.List("INBOX", 0)
	require.NoError(t, err)
	require.NotEmpty(t, messages)
	id := messages[0].ID
	require.True(t, messages[0].Seen)

	require.NoError(t, session.MarkUnread(id))
	messages, err = session.List("INBOX", 0)
	require.NoError(t, err)
	assert.False(t, messages[0].Seen)

	require.NoError(t, session.MarkRead(id))
	messages, err = session.List("INBOX", 0)
	require.NoError(t, err)
	assert.True(t, messages[0].Seen)
}

func TestDeleteExpunges(t *testing.T) {
	be, port := startServer(t)
	appendMessage(t, be, "doomed@example.org", "delete me", "gone soon",
		time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	session := connect(t, port)

	messages, err := session.List("INBOX", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	var id string
	for _, msg := range messages {
		if msg.Subject == "delete me" {
			id = msg.ID
		}
	}
	require.NotEmpty(t, id)

	require.NoError(t, session.Delete(id))

	messages, err = session.List("INBOX", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.NotEqual(t, "delete me", messages[0].Subject)
}

func TestCloseEndsSession(t *testing.T) {
	_, port := startServer(t)
	session := connect(t, port)

	require.NoError(t, session.Close())
	assert.Equal(t, interfaces.StateDisconnected, session.State())

	_, err := session.List("INBOX", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrState))

	// closing twice is fine
	require.NoError(t, session.Close())
}
