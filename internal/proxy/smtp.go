package proxy

import (
	"crypto/tls"
	"net/mail"

	"github.com/gravitational/trace"
	gomail "gopkg.in/mail.v2"

	"github.com/passman/vault/internal/vault"
)

// SendEmailInput is the caller-supplied half of a send_email call.
type SendEmailInput struct {
	To      []string
	Subject string
	Body    string
	CC      []string
	BCC     []string
	From    string // optional, defaults to the credential's username
}

// SendEmailOutput is the result of a send_email call.
type SendEmailOutput struct {
	Success   bool
	MessageID string
}

// ExecuteSMTP sends input using the SMTPAccountSecret's host, port,
// credentials, and transport-encryption mode. Every address field is
// parsed strictly with net/mail; a parse failure is an input error.
func ExecuteSMTP(secret vault.Secret, input SendEmailInput) (*SendEmailOutput, error) {
	smtpSecret, ok := secret.(vault.SMTPAccountSecret)
	if !ok {
		return nil, trace.BadParameter("credential type not supported for SMTP")
	}

	from := input.From
	if from == "" {
		from = smtpSecret.Username
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, trace.BadParameter("invalid email address %q: %v", from, err)
	}
	for _, addr := range append(append(append([]string{}, input.To...), input.CC...), input.BCC...) {
		if _, err := mail.ParseAddress(addr); err != nil {
			return nil, trace.BadParameter("invalid email address %q: %v", addr, err)
		}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", input.To...)
	if len(input.CC) > 0 {
		m.SetHeader("Cc", input.CC...)
	}
	if len(input.BCC) > 0 {
		m.SetHeader("Bcc", input.BCC...)
	}
	m.SetHeader("Subject", input.Subject)
	m.SetBody("text/plain", input.Body)

	dialer := gomail.NewDialer(smtpSecret.Host, int(smtpSecret.Port), smtpSecret.Username, smtpSecret.Password)
	switch smtpSecret.Encryption {
	case vault.SMTPEncryptionTLS:
		dialer.SSL = true
	case vault.SMTPEncryptionStartTLS:
		dialer.TLSConfig = &tls.Config{ServerName: smtpSecret.Host}
	case vault.SMTPEncryptionNone:
		// Dangerous mode for local MTAs/testing: skip certificate
		// verification on any opportunistic STARTTLS the server offers.
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if err := dialer.DialAndSend(m); err != nil {
		return nil, trace.Wrap(err, "failed to send email")
	}

	// gopkg.in/mail.v2 doesn't surface the server's response line, so
	// there is no message identifier to report beyond success.
	return &SendEmailOutput{Success: true}, nil
}
