package vault

import (
	"time"

	"github.com/google/uuid"
)

// CredentialKind identifies which concrete Secret variant a credential
// carries.
type CredentialKind string

// The credential kinds the vault understands.
const (
	KindPassword           CredentialKind = "password"
	KindAPIToken           CredentialKind = "api_token"
	KindSSHKey             CredentialKind = "ssh_key"
	KindSSHPassword        CredentialKind = "ssh_password"
	KindDatabaseConnection CredentialKind = "database_connection"
	KindCertificate        CredentialKind = "certificate"
	KindSMTPAccount        CredentialKind = "smtp_account"
	KindCustom             CredentialKind = "custom"
)

// Environment tags a credential with the deployment tier it belongs to.
// Custom holds any value other than the four well-known tiers.
type Environment struct {
	Tier   EnvironmentTier `json:"tier"`
	Custom string          `json:"custom,omitempty"`
}

// EnvironmentTier is the well-known part of an Environment.
type EnvironmentTier string

// The well-known environment tiers.
const (
	EnvLocal       EnvironmentTier = "local"
	EnvDevelopment EnvironmentTier = "development"
	EnvStaging     EnvironmentTier = "staging"
	EnvProduction  EnvironmentTier = "production"
	EnvCustom      EnvironmentTier = "custom"
)

// String renders the environment the way it would appear in a log line:
// the tier name, or the custom value for EnvCustom.
func (e Environment) String() string {
	if e.Tier == EnvCustom {
		return e.Custom
	}
	return string(e.Tier)
}

// NewEnvironment builds an Environment from free text, mapping the four
// well-known names onto their tiers and anything else onto EnvCustom.
func NewEnvironment(s string) Environment {
	switch EnvironmentTier(s) {
	case EnvLocal, EnvDevelopment, EnvStaging, EnvProduction:
		return Environment{Tier: EnvironmentTier(s)}
	default:
		return Environment{Tier: EnvCustom, Custom: s}
	}
}

// CredentialMeta is the always-plaintext, searchable half of a
// credential. It never carries secret material.
type CredentialMeta struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Kind        CredentialKind `json:"kind"`
	Environment Environment `json:"environment"`
	Tags        []string    `json:"tags"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Notes       string      `json:"notes,omitempty"`
}

// Category is a user-defined grouping label, independent of Environment.
type Category struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RateLimit bounds how many proxy calls a credential's policy allows in
// a sliding time window.
type RateLimit struct {
	MaxRequests uint32 `json:"max_requests"`
	WindowSecs  uint64 `json:"window_secs"`
}

// PolicyRule is the set of restrictions attached to one credential. At
// most one PolicyRule exists per credential (invariant I2).
type PolicyRule struct {
	CredentialID         uuid.UUID  `json:"credential_id"`
	AllowedTools         []string   `json:"allowed_tools"`
	HTTPURLPatterns      []string   `json:"http_url_patterns,omitempty"`
	SSHCommandPatterns   []string   `json:"ssh_command_patterns,omitempty"`
	SQLAllowWrite        bool       `json:"sql_allow_write"`
	SMTPAllowedRecipients []string  `json:"smtp_allowed_recipients,omitempty"`
	RateLimit            *RateLimit `json:"rate_limit,omitempty"`
}
