package errors

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// One sentinel per failure kind. Callers wrap these with context via
// pkg/errors and match with errors.Is.
var (
	// network/socket failure, caller may retry
	ErrConnection = errors.New("connection failed")
	// certificate or handshake failure, surfaced for user action
	ErrTLS = errors.New("tls negotiation failed")
	// credentials rejected by the server
	ErrAuth = errors.New("authentication rejected")
	// server returned an unexpected or malformed response
	ErrProtocol = errors.New("unexpected server response")
	// operation invoked in the wrong session state
	ErrState = errors.New("invalid session state")
	// message id no longer exists on the server
	ErrNotFound = errors.New("message not found")
	// byte stream cannot be parsed as a mail message
	ErrMalformedMessage = errors.New("unparsable message")
	// credential store integrity failure, never falls back to plaintext
	ErrCrypto = errors.New("credential decryption failed")
	// credential storage cannot be created or secured
	ErrPermission = errors.New("cannot secure credential storage")
)

// Kind returns a short machine-friendly name for the taxonomy kind of err,
// or "internal" when err matches none of the sentinels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrTLS):
		return "tls"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed-message"
	case errors.Is(err, ErrCrypto):
		return "crypto"
	case errors.Is(err, ErrPermission):
		return "permission"
	default:
		var de *DeliveryError
		if errors.As(err, &de) {
			return "delivery"
		}
		return "internal"
	}
}

// ClassifyDial maps a dial/handshake error onto the taxonomy: certificate
// and TLS record errors become ErrTLS, everything else ErrConnection.
func ClassifyDial(err error, addr string) error {
	if err == nil {
		return nil
	}
	var (
		recordErr  tls.RecordHeaderError
		certErr    x509.CertificateInvalidError
		unknownErr x509.UnknownAuthorityError
		hostErr    x509.HostnameError
	)
	if errors.As(err, &recordErr) || errors.As(err, &certErr) ||
		errors.As(err, &unknownErr) || errors.As(err, &hostErr) {
		return errors.Wrapf(ErrTLS, "%s: %v", addr, err)
	}
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:") {
		return errors.Wrapf(ErrTLS, "%s: %v", addr, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(ErrConnection, "%s: timed out", addr)
	}
	return errors.Wrapf(ErrConnection, "%s: %v", addr, err)
}

// DeliveryError reports per-recipient send rejections without collapsing
// them into a single failure: recipients that were accepted still received
// the message.
type DeliveryError struct {
	Rejected map[string]string
}

func NewDeliveryError() *DeliveryError {
	return &DeliveryError{Rejected: make(map[string]string)}
}

func (e *DeliveryError) Add(recipient, reason string) {
	e.Rejected[recipient] = reason
}

func (e *DeliveryError) HasErrors() bool {
	return len(e.Rejected) > 0
}

// Recipients returns the rejected addresses in stable order.
func (e *DeliveryError) Recipients() []string {
	out := make([]string, 0, len(e.Rejected))
	for addr := range e.Rejected {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Rejected))
	for _, addr := range e.Recipients() {
		parts = append(parts, fmt.Sprintf("%s: %s", addr, e.Rejected[addr]))
	}
	return "delivery rejected for " + strings.Join(parts, " | ")
}
