package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/models"
)

func TestBuildParseRoundTrip(t *testing.T) {
	raw, err := Build(BuildParams{
		FromAddress: "ada@example.org",
		FromName:    "Ada Lovelace",
		To:          []string{"grace@example.org"},
		Cc:          []string{"alan@example.org"},
		Subject:     "meeting notes",
		Body:        "See attached notes.\n",
	})
	require.NoError(t, err)

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "ada@example.org", msg.From)
	assert.Equal(t, "Ada Lovelace", msg.FromName)
	assert.Equal(t, []string{"grace@example.org"}, msg.To)
	assert.Equal(t, []string{"alan@example.org"}, msg.Cc)
	assert.Equal(t, "meeting notes", msg.Subject)
	assert.Equal(t, "See attached notes.\n", msg.BodyText)
	assert.WithinDuration(t, time.Now(), msg.Date, time.Minute)
	assert.Empty(t, msg.Attachments)
}

func TestBuildGeneratesMessageID(t *testing.T) {
	raw, err := Build(BuildParams{
		FromAddress: "ada@example.org",
		To:          []string{"grace@example.org"},
		Subject:     "x",
		Body:        "y",
	})
	require.NoError(t, err)

	text := string(raw)
	require.Contains(t, text, "Message-ID: <")
	require.Contains(t, text, "@example.org>")
}

func TestBuildWithAttachments(t *testing.T) {
	raw, err := Build(BuildParams{
		FromAddress: "ada@example.org",
		To:          []string{"grace@example.org"},
		Subject:     "with attachment",
		Body:        "see attached",
		Attachments: []models.Attachment{
			{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("line one\nline two\n")},
			{Filename: "data.bin", Data: []byte{0x00, 0x01, 0x02, 0xff}},
		},
	})
	require.NoError(t, err)
	require.Contains(t, string(raw), "multipart/mixed")

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "see attached", strings.TrimSpace(msg.BodyText))
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "notes.txt", msg.Attachments[0].Filename)
	assert.Equal(t, []byte("line one\nline two\n"), msg.Attachments[0].Data)
	assert.Equal(t, "data.bin", msg.Attachments[1].Filename)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0xff}, msg.Attachments[1].Data)
}

func TestBuildEncodesUnicodeSubject(t *testing.T) {
	raw, err := Build(BuildParams{
		FromAddress: "ada@example.org",
		To:          []string{"grace@example.org"},
		Subject:     "測試 report zażółć",
		Body:        "unicode everywhere",
	})
	require.NoError(t, err)

	// the wire form is encoded, the parsed form decodes back
	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "測試 report zażółć", msg.Subject)
}

func TestRoundTripUnicodeSubjectWithAttachment(t *testing.T) {
	raw, err := Build(BuildParams{
		FromAddress: "ada@example.org",
		To:          []string{"grace@example.org"},
		Subject:     "測試",
		Body:        "Hello",
		Attachments: []models.Attachment{
			{Filename: "report.txt", ContentType: "text/plain", Data: []byte("abc")},
		},
	})
	require.NoError(t, err)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "測試", msg.Subject)
	assert.Equal(t, "Hello", strings.TrimSpace(msg.BodyText))
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "report.txt", msg.Attachments[0].Filename)
	assert.Equal(t, []byte("abc"), msg.Attachments[0].Data)
}

func TestBuildRequiresSenderAndRecipient(t *testing.T) {
	_, err := Build(BuildParams{To: []string{"grace@example.org"}})
	require.Error(t, err)

	_, err = Build(BuildParams{FromAddress: "ada@example.org"})
	require.Error(t, err)
}

func TestParseRejectsUnreadableInput(t *testing.T) {
	_, err := Parse(nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrMalformedMessage))
}

func TestParseToleratesMissingHeaders(t *testing.T) {
	raw := []byte("Subject: bare minimum\r\n\r\nbody text\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "bare minimum", msg.Subject)
	assert.Equal(t, "", msg.From)
	assert.True(t, msg.Date.IsZero())
	assert.Equal(t, "body text", strings.TrimSpace(msg.BodyText))
}

func TestParseDecodesEncodedHeaders(t *testing.T) {
	raw := []byte("From: =?utf-8?q?Gra=C5=BCyna?= <g@example.org>\r\n" +
		"To: grace@example.org\r\n" +
		"Subject: =?utf-8?b?5ris6Kmm?=\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"\r\n" +
		"hello\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "測試", msg.Subject)
	assert.Equal(t, "Grażyna", msg.FromName)
	assert.Equal(t, "g@example.org", msg.From)
	assert.Equal(t, 2006, msg.Date.Year())
}

func TestParseFallbackAttachmentName(t *testing.T) {
	raw := []byte("From: ada@example.org\r\n" +
		"To: grace@example.org\r\n" +
		"Subject: unnamed part\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"frontier\"\r\n" +
		"\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body here\r\n" +
		"--frontier\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment\r\n" +
		"\r\n" +
		"%PDF-1.4 pretend\r\n" +
		"--frontier--\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.True(t, strings.HasPrefix(msg.Attachments[0].Filename, "attachment-"))
	assert.True(t, strings.HasSuffix(msg.Attachments[0].Filename, ".pdf"))
}

func TestParsePrefersTextOverHTML(t *testing.T) {
	raw := []byte("From: ada@example.org\r\n" +
		"To: grace@example.org\r\n" +
		"Subject: alternative\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"alt\"\r\n" +
		"\r\n" +
		"--alt\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--alt\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--alt--\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain version", strings.TrimSpace(msg.BodyText))
}
