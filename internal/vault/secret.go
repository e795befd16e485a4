package vault

import (
	"encoding/json"

	"github.com/gravitational/trace"
)

// Secret is the closed sum of credential-secret variants. Every
// implementation is encrypted as a whole before it ever touches disk;
// the interface exists only to let the rest of the vault and the proxy
// layer dispatch on kind without a type assertion at every call site.
type Secret interface {
	// Kind reports which concrete variant this is, matching the
	// CredentialKind stored alongside the credential's metadata.
	Kind() CredentialKind

	// SecretStrings returns every byte-string that must never appear
	// unredacted in proxy output: passwords, tokens, private key PEM
	// blocks, passphrases, and Custom map values.
	SecretStrings() [][]byte

	secretMarker() // closes the sum to this package
}

// PasswordSecret is a plain username/password pair, optionally scoped
// to a URL.
type PasswordSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url,omitempty"`
}

func (PasswordSecret) Kind() CredentialKind { return KindPassword }
func (s PasswordSecret) SecretStrings() [][]byte {
	return [][]byte{[]byte(s.Password)}
}
func (PasswordSecret) secretMarker() {}

// APITokenSecret is a bearer-style token injected into an HTTP header.
type APITokenSecret struct {
	Token      string `json:"token"`
	HeaderName string `json:"header_name,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
}

// EffectiveHeaderName returns HeaderName, defaulting to "Authorization".
func (s APITokenSecret) EffectiveHeaderName() string {
	if s.HeaderName != "" {
		return s.HeaderName
	}
	return "Authorization"
}

// EffectivePrefix returns Prefix, defaulting to "Bearer ".
func (s APITokenSecret) EffectivePrefix() string {
	if s.Prefix != "" {
		return s.Prefix
	}
	return "Bearer "
}

func (APITokenSecret) Kind() CredentialKind { return KindAPIToken }
func (s APITokenSecret) SecretStrings() [][]byte {
	return [][]byte{[]byte(s.Token)}
}
func (APITokenSecret) secretMarker() {}

// SSHKeySecret authenticates over SSH with a PEM-encoded private key,
// optionally passphrase-protected.
type SSHKeySecret struct {
	Username   string `json:"username"`
	Host       string `json:"host"`
	Port       uint16 `json:"port"`
	PrivateKey string `json:"private_key"`
	Passphrase string `json:"passphrase,omitempty"`
}

// EffectivePort returns Port, defaulting to 22.
func (s SSHKeySecret) EffectivePort() uint16 {
	if s.Port != 0 {
		return s.Port
	}
	return 22
}

func (SSHKeySecret) Kind() CredentialKind { return KindSSHKey }
func (s SSHKeySecret) SecretStrings() [][]byte {
	strs := [][]byte{[]byte(s.PrivateKey)}
	if s.Passphrase != "" {
		strs = append(strs, []byte(s.Passphrase))
	}
	return strs
}
func (SSHKeySecret) secretMarker() {}

// SSHPasswordSecret authenticates over SSH with a plain password.
type SSHPasswordSecret struct {
	Username string `json:"username"`
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Password string `json:"password"`
}

// EffectivePort returns Port, defaulting to 22.
func (s SSHPasswordSecret) EffectivePort() uint16 {
	if s.Port != 0 {
		return s.Port
	}
	return 22
}

func (SSHPasswordSecret) Kind() CredentialKind { return KindSSHPassword }
func (s SSHPasswordSecret) SecretStrings() [][]byte {
	return [][]byte{[]byte(s.Password)}
}
func (SSHPasswordSecret) secretMarker() {}

// DBDriver identifies the wire dialect a DatabaseConnectionSecret
// speaks.
type DBDriver string

// The database drivers the SQL proxy supports.
const (
	DriverPostgres DBDriver = "postgres"
	DriverMySQL    DBDriver = "mysql"
	DriverSQLite   DBDriver = "sqlite"
)

// DatabaseConnectionSecret carries everything needed to build a
// connection string for one of the three supported SQL drivers.
type DatabaseConnectionSecret struct {
	Driver   DBDriver          `json:"driver"`
	Host     string            `json:"host"`
	Port     uint16            `json:"port"`
	Database string            `json:"database"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	Params   map[string]string `json:"params,omitempty"`
}

func (DatabaseConnectionSecret) Kind() CredentialKind { return KindDatabaseConnection }
func (s DatabaseConnectionSecret) SecretStrings() [][]byte {
	return [][]byte{[]byte(s.Password)}
}
func (DatabaseConnectionSecret) secretMarker() {}

// CertificateSecret is a PEM cert/key pair used for mTLS.
type CertificateSecret struct {
	CertPEM string `json:"cert_pem"`
	KeyPEM  string `json:"key_pem"`
	CAPEM   string `json:"ca_pem,omitempty"`
}

func (CertificateSecret) Kind() CredentialKind { return KindCertificate }
func (s CertificateSecret) SecretStrings() [][]byte {
	return [][]byte{[]byte(s.CertPEM), []byte(s.KeyPEM)}
}
func (CertificateSecret) secretMarker() {}

// SMTPEncryption selects how the SMTP proxy dials the relay.
type SMTPEncryption string

// The SMTP transport modes.
const (
	SMTPEncryptionNone     SMTPEncryption = "none"
	SMTPEncryptionStartTLS SMTPEncryption = "start_tls"
	SMTPEncryptionTLS      SMTPEncryption = "tls"
)

// SMTPAccountSecret authenticates outbound mail.
type SMTPAccountSecret struct {
	Host       string         `json:"host"`
	Port       uint16         `json:"port"`
	Username   string         `json:"username"`
	Password   string         `json:"password"`
	Encryption SMTPEncryption `json:"encryption"`
}

func (SMTPAccountSecret) Kind() CredentialKind { return KindSMTPAccount }
func (s SMTPAccountSecret) SecretStrings() [][]byte {
	return [][]byte{[]byte(s.Password)}
}
func (SMTPAccountSecret) secretMarker() {}

// CustomSecret is a free-form string map for credential kinds the
// vault has no dedicated variant for.
type CustomSecret struct {
	Fields map[string]string `json:"fields"`
}

func (CustomSecret) Kind() CredentialKind { return KindCustom }
func (s CustomSecret) SecretStrings() [][]byte {
	strs := make([][]byte, 0, len(s.Fields))
	for _, v := range s.Fields {
		strs = append(strs, []byte(v))
	}
	return strs
}
func (CustomSecret) secretMarker() {}

// MarshalSecret serializes a Secret into the tagged JSON form stored
// (encrypted) inside a StoredCredential.
func MarshalSecret(s Secret) ([]byte, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, trace.Wrap(err, "failed to serialize secret")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, trace.Wrap(err, "failed to serialize secret")
	}
	fields["type"], err = json.Marshal(s.Kind())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, trace.Wrap(err, "failed to serialize secret")
	}
	return out, nil
}

// UnmarshalSecret parses the tagged JSON form produced by MarshalSecret
// back into the concrete Secret implementation matching its "type" tag.
func UnmarshalSecret(data []byte) (Secret, error) {
	var tagged struct {
		Type CredentialKind `json:"type"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, trace.Wrap(err, "failed to deserialize secret")
	}

	var s Secret
	switch tagged.Type {
	case KindPassword:
		s = &PasswordSecret{}
	case KindAPIToken:
		s = &APITokenSecret{}
	case KindSSHKey:
		s = &SSHKeySecret{}
	case KindSSHPassword:
		s = &SSHPasswordSecret{}
	case KindDatabaseConnection:
		s = &DatabaseConnectionSecret{}
	case KindCertificate:
		s = &CertificateSecret{}
	case KindSMTPAccount:
		s = &SMTPAccountSecret{}
	case KindCustom:
		s = &CustomSecret{}
	default:
		return nil, trace.BadParameter("unknown credential kind %q", tagged.Type)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, trace.Wrap(err, "failed to deserialize secret")
	}
	// Dereference back to the value type so callers get the same
	// concrete type MarshalSecret was handed, not a pointer.
	switch v := s.(type) {
	case *PasswordSecret:
		return *v, nil
	case *APITokenSecret:
		return *v, nil
	case *SSHKeySecret:
		return *v, nil
	case *SSHPasswordSecret:
		return *v, nil
	case *DatabaseConnectionSecret:
		return *v, nil
	case *CertificateSecret:
		return *v, nil
	case *SMTPAccountSecret:
		return *v, nil
	case *CustomSecret:
		return *v, nil
	default:
		return s, nil
	}
}
