package smtp

import (
	"crypto/tls"
	"net"
	"net/smtp"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/pkg/errors"

	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/logger"
	"github.com/curlew-mail/curlew/internal/models"
)

// Sender delivers prepared MIME messages over SMTP. Each Send opens a fresh
// connection: with starttls the connection begins in plaintext and is
// upgraded before any credentials are sent, otherwise the socket itself is
// TLS from the first byte.
type Sender struct {
	account *models.Account
	timeout time.Duration
	log     logger.Logger
}

func NewSender(account *models.Account, timeout time.Duration, log logger.Logger) *Sender {
	return &Sender{account: account, timeout: timeout, log: log}
}

// Send validates the recipient set, connects, authenticates and hands the
// raw message to the server. Recipient rejections - local syntax failures
// and server RCPT refusals alike - are collected into a DeliveryError so a
// partial failure still reports every bad address at once.
func (s *Sender) Send(from string, recipients []string, raw []byte) error {
	if from == "" {
		return errors.New("sender address is required")
	}
	if len(recipients) == 0 {
		return errors.New("at least one recipient is required")
	}

	delivery := errs.NewDeliveryError()
	var accepted []string
	for _, rcpt := range recipients {
		validation := mailvalidate.ValidateEmailSyntax(rcpt)
		if !validation.IsValid {
			delivery.Add(rcpt, "invalid address syntax")
			continue
		}
		accepted = append(accepted, rcpt)
	}
	if len(accepted) == 0 {
		return delivery
	}
	if delivery.HasErrors() {
		s.log.Warnf("skipping %d syntactically invalid recipients", len(recipients)-len(accepted))
	}

	client, err := s.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}

	if err := client.Mail(from); err != nil {
		return errors.Wrapf(errs.ErrProtocol, "MAIL FROM %s: %v", from, err)
	}

	sendable := 0
	for _, rcpt := range accepted {
		if err := client.Rcpt(rcpt); err != nil {
			delivery.Add(rcpt, err.Error())
			continue
		}
		sendable++
	}
	if sendable == 0 {
		return delivery
	}

	w, err := client.Data()
	if err != nil {
		return errors.Wrapf(errs.ErrProtocol, "DATA: %v", err)
	}
	if _, err := w.Write(raw); err != nil {
		return errors.Wrapf(errs.ErrProtocol, "writing message: %v", err)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(errs.ErrProtocol, "finishing message: %v", err)
	}

	if err := client.Quit(); err != nil {
		s.log.Debugf("smtp quit: %v", err)
	}

	if delivery.HasErrors() {
		return delivery
	}
	return nil
}

// connect establishes an authenticated-ready SMTP client. For starttls the
// upgrade is mandatory: a server that does not advertise the extension is a
// hard ErrTLS, never a silent plaintext session.
func (s *Sender) connect() (*smtp.Client, error) {
	cfg := s.account.SMTP
	addr := cfg.Addr()

	tlsConfig := &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: !cfg.VerifySSL,
	}

	dialer := &net.Dialer{Timeout: s.timeout}

	if cfg.StartTLS {
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, errs.ClassifyDial(err, addr)
		}
		conn.SetDeadline(time.Now().Add(s.timeout))

		client, err := smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(errs.ErrProtocol, "smtp greeting from %s: %v", addr, err)
		}
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, errors.Wrapf(errs.ErrTLS, "server %s does not support STARTTLS", addr)
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, errors.Wrapf(errs.ErrTLS, "starttls with %s: %v", addr, err)
		}
		return client, nil
	}

	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, errs.ClassifyDial(err, addr)
	}
	conn.SetDeadline(time.Now().Add(s.timeout))

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(errs.ErrProtocol, "smtp greeting from %s: %v", addr, err)
	}
	return client, nil
}

func (s *Sender) authenticate(client *smtp.Client) error {
	if s.account.Password == "" {
		return nil
	}
	auth := smtp.PlainAuth("", s.account.Email, s.account.Password, s.account.SMTP.Host)
	if err := client.Auth(auth); err != nil {
		return errors.Wrapf(errs.ErrAuth, "smtp login as %s: %v", s.account.Email, err)
	}
	return nil
}
