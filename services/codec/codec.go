package codec

import (
	"bytes"
	"net/mail"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/models"
	"github.com/curlew-mail/curlew/internal/utils"
)

// BuildParams are the compose fields for an outgoing message.
type BuildParams struct {
	FromAddress string
	FromName    string
	To          []string
	Cc          []string
	Subject     string
	Body        string
	Attachments []models.Attachment
}

// Build constructs the raw MIME bytes for an outgoing message: a plain
// text/plain message without attachments, multipart/mixed with base64
// attachment parts otherwise. Date and Message-ID are generated; everything
// else is determined by the params.
func Build(p BuildParams) ([]byte, error) {
	if p.FromAddress == "" {
		return nil, errors.New("build: sender address is required")
	}
	if len(p.To) == 0 {
		return nil, errors.New("build: at least one recipient is required")
	}

	builder := enmime.Builder().
		From(p.FromName, p.FromAddress).
		ToAddrs(toAddressList(p.To)).
		Subject(p.Subject).
		Date(time.Now()).
		Header("Message-ID", utils.GenerateMessageID(utils.DomainFromAddress(p.FromAddress))).
		Text([]byte(p.Body))

	if len(p.Cc) > 0 {
		builder = builder.CCAddrs(toAddressList(p.Cc))
	}

	for _, att := range p.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = utils.DetectContentType(att.Filename)
		}
		builder = builder.AddAttachment(att.Data, contentType, att.Filename)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "assembling mime message")
	}

	// textproto canonicalizes the key to Message-Id; restore the RFC 5322 casing
	if v, ok := part.Header["Message-Id"]; ok {
		part.Header["Message-ID"] = v
		delete(part.Header, "Message-Id")
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, errors.Wrap(err, "encoding mime message")
	}
	return buf.Bytes(), nil
}

// Parse turns raw message bytes into a structured Message. The parser is
// tolerant: missing optional headers come back empty, the first text part
// wins for multipart bodies, and non-text parts become attachments with a
// generated filename when the part carries none. Only a byte stream that
// cannot be read as a message at all fails, with ErrMalformedMessage.
func Parse(raw []byte) (*models.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(errs.ErrMalformedMessage, "%v", err)
	}

	msg := &models.Message{
		Subject: env.GetHeader("Subject"),
		To:      addressValues(env, "To"),
		Cc:      addressValues(env, "Cc"),
	}

	if from := env.GetHeader("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			msg.From = addr.Address
			msg.FromName = addr.Name
		} else {
			msg.From = from
		}
	}

	if date := env.GetHeader("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.Date = t
		}
	}

	msg.BodyText = env.Text
	if msg.BodyText == "" {
		msg.BodyText = env.HTML
	}

	for _, part := range env.Attachments {
		msg.Attachments = append(msg.Attachments, partToAttachment(part))
	}
	for _, part := range env.Inlines {
		// inline images and the like still surface as attachments; the
		// text body itself never lands in Inlines
		if part.FileName == "" && len(part.Content) == 0 {
			continue
		}
		msg.Attachments = append(msg.Attachments, partToAttachment(part))
	}
	for _, part := range env.OtherParts {
		msg.Attachments = append(msg.Attachments, partToAttachment(part))
	}

	return msg, nil
}

func partToAttachment(part *enmime.Part) models.Attachment {
	filename := part.FileName
	if filename == "" {
		filename = utils.GenerateAttachmentName(part.ContentType)
	}
	return models.Attachment{
		Filename:    filename,
		ContentType: part.ContentType,
		Data:        part.Content,
	}
}

func toAddressList(addrs []string) []mail.Address {
	out := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if parsed, err := mail.ParseAddress(a); err == nil {
			out = append(out, *parsed)
		} else {
			out = append(out, mail.Address{Address: a})
		}
	}
	return out
}

func addressValues(env *enmime.Envelope, key string) []string {
	list, err := env.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		out = append(out, addr.Address)
	}
	return out
}
