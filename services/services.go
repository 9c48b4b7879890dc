package services

import (
	"time"

	"github.com/pkg/errors"

	"github.com/curlew-mail/curlew/internal/logger"
	"github.com/curlew-mail/curlew/internal/models"
	"github.com/curlew-mail/curlew/services/imap"
	"github.com/curlew-mail/curlew/services/mailbox"
	"github.com/curlew-mail/curlew/services/pop3"
	"github.com/curlew-mail/curlew/services/smtp"

	"github.com/curlew-mail/curlew/interfaces"
)

// OpenSession connects to the account's receive server using whichever
// protocol the account is configured for.
func OpenSession(account *models.Account, timeout time.Duration, log logger.Logger) (interfaces.Session, error) {
	switch account.RecvProtocol {
	case models.ProtocolIMAP:
		return imap.Connect(account, timeout, log)
	case models.ProtocolPOP3:
		return pop3.Connect(account, timeout, log)
	default:
		return nil, errors.Errorf("unknown receive protocol %q", account.RecvProtocol)
	}
}

// OpenMailbox connects to the account's receive server and wraps the
// session in a mailbox model with a fresh INBOX snapshot.
func OpenMailbox(account *models.Account, timeout time.Duration, log logger.Logger) (*mailbox.Model, error) {
	session, err := OpenSession(account, timeout, log)
	if err != nil {
		return nil, err
	}
	model := mailbox.NewModel(session, log)
	if err := model.Refresh(""); err != nil {
		session.Close()
		return nil, err
	}
	return model, nil
}

// NewSender builds an SMTP sender for the account.
func NewSender(account *models.Account, timeout time.Duration, log logger.Logger) *smtp.Sender {
	return smtp.NewSender(account, timeout, log)
}
