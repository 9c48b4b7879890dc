package models

import (
	"fmt"
	"strings"

	"github.com/curlew-mail/curlew/internal/utils"
)

// Protocol names the retrieval protocol an account uses. Exactly one is
// active per session.
type Protocol string

const (
	ProtocolPOP3 Protocol = "pop3"
	ProtocolIMAP Protocol = "imap"
)

func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pop3":
		return ProtocolPOP3, nil
	case "imap":
		return ProtocolIMAP, nil
	default:
		return "", fmt.Errorf("unknown receive protocol %q", s)
	}
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	StartTLS  bool   `json:"starttls"`
	VerifySSL bool   `json:"verify_ssl"`
}

func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ReceiveConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	SSL  bool   `json:"ssl"`
}

func (c ReceiveConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Account is the persisted account record. The Password field always holds
// the encrypted form; plaintext never reaches the config file. Immutable
// for the duration of a session.
type Account struct {
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Password     string        `json:"password"`
	Signature    string        `json:"signature"`
	RecvProtocol Protocol      `json:"recv_protocol"`
	SMTP         SMTPConfig    `json:"smtp"`
	IMAP         ReceiveConfig `json:"imap"`
	POP3         ReceiveConfig `json:"pop3"`
}

// Receive returns the receive endpoint for the active protocol.
func (a *Account) Receive() ReceiveConfig {
	if a.RecvProtocol == ProtocolIMAP {
		return a.IMAP
	}
	return a.POP3
}

// DisplayName falls back to the local part of the address when no display
// name is configured.
func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return utils.LocalPartFromAddress(a.Email)
}

func (a *Account) Domain() string {
	return utils.DomainFromAddress(a.Email)
}

func (a *Account) Validate() error {
	if a.Email == "" {
		return fmt.Errorf("account has no email address, run setup first")
	}
	if a.RecvProtocol != ProtocolPOP3 && a.RecvProtocol != ProtocolIMAP {
		return fmt.Errorf("account has invalid receive protocol %q", a.RecvProtocol)
	}
	return nil
}
