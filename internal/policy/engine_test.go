package policy

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/passman/vault/internal/vault"
	"github.com/passman/vault/internal/vaulterr"
)

func TestCheckTool(t *testing.T) {
	e := NewEngine()
	open := &vault.PolicyRule{CredentialID: uuid.New()}
	require.NoError(t, e.CheckTool(open, "http_request"))

	restricted := &vault.PolicyRule{CredentialID: uuid.New(), AllowedTools: []string{"http_request"}}
	require.NoError(t, e.CheckTool(restricted, "http_request"))
	err := e.CheckTool(restricted, "ssh_exec")
	require.True(t, vaulterr.IsPolicyDenied(err))
}

func TestCheckHTTPURL(t *testing.T) {
	e := NewEngine()
	p := &vault.PolicyRule{CredentialID: uuid.New(), HTTPURLPatterns: []string{"https://api.github.com/*"}}
	require.NoError(t, e.CheckHTTPURL(p, "https://api.github.com/repos"))
	require.True(t, vaulterr.IsPolicyDenied(e.CheckHTTPURL(p, "https://evil.example.com")))
}

func TestCheckSQLReadOnly(t *testing.T) {
	e := NewEngine()
	p := &vault.PolicyRule{CredentialID: uuid.New(), SQLAllowWrite: false}

	require.NoError(t, e.CheckSQLQuery(p, "SELECT * FROM users"))
	require.NoError(t, e.CheckSQLQuery(p, "select count(*) from users"))
	require.True(t, vaulterr.IsPolicyDenied(e.CheckSQLQuery(p, "INSERT INTO users VALUES (1)")))
	require.True(t, vaulterr.IsPolicyDenied(e.CheckSQLQuery(p, "DELETE FROM users")))
	require.True(t, vaulterr.IsPolicyDenied(e.CheckSQLQuery(p, "DROP TABLE users")))

	writable := &vault.PolicyRule{CredentialID: uuid.New(), SQLAllowWrite: true}
	require.NoError(t, e.CheckSQLQuery(writable, "DELETE FROM users"))
}

func TestCheckSMTPRecipient(t *testing.T) {
	e := NewEngine()
	p := &vault.PolicyRule{CredentialID: uuid.New(), SMTPAllowedRecipients: []string{"*@company.com"}}
	require.NoError(t, e.CheckSMTPRecipient(p, "user@company.com"))
	require.True(t, vaulterr.IsPolicyDenied(e.CheckSMTPRecipient(p, "user@other.com")))
}

func TestCheckRateLimit(t *testing.T) {
	e := NewEngine()
	p := &vault.PolicyRule{
		CredentialID: uuid.New(),
		RateLimit:    &vault.RateLimit{MaxRequests: 2, WindowSecs: 3600},
	}

	require.NoError(t, e.CheckRateLimit(p))
	require.NoError(t, e.CheckRateLimit(p))
	require.True(t, vaulterr.IsPolicyDenied(e.CheckRateLimit(p)))
}

func TestCheckRateLimitWindowExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngineWithClock(clock)
	p := &vault.PolicyRule{
		CredentialID: uuid.New(),
		RateLimit:    &vault.RateLimit{MaxRequests: 2, WindowSecs: 60},
	}

	require.NoError(t, e.CheckRateLimit(p))
	require.NoError(t, e.CheckRateLimit(p))
	require.True(t, vaulterr.IsPolicyDenied(e.CheckRateLimit(p)))

	clock.Advance(61 * time.Second)
	require.NoError(t, e.CheckRateLimit(p), "request should be allowed again once the window has aged out")
}

func TestCheckRateLimitUnbounded(t *testing.T) {
	e := NewEngine()
	p := &vault.PolicyRule{CredentialID: uuid.New()}
	for i := 0; i < 5; i++ {
		require.NoError(t, e.CheckRateLimit(p))
	}
}
