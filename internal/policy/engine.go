// Package policy evaluates the per-credential PolicyRule attached to a
// vault credential: tool allow-lists, URL/command/recipient glob
// patterns, the SQL read-only denylist, and a sliding-window rate
// limiter. Every proxy tool runs its request through the matching
// check before talking to the credential's backend.
package policy

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/passman/vault/internal/vault"
	"github.com/passman/vault/internal/vaulterr"
)

// writeKeywords are the SQL verbs CheckSQLQuery refuses to execute
// against a credential whose policy has not set SQLAllowWrite.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE", "REPLACE", "MERGE",
}

// Engine evaluates PolicyRules. It is safe for concurrent use; the only
// mutable state is the rate limiter's per-credential request history.
type Engine struct {
	mu       sync.Mutex
	counters map[uuid.UUID][]time.Time
	clock    clockwork.Clock
}

// NewEngine returns a ready-to-use Engine with an empty rate limiter,
// driven by the real wall clock.
func NewEngine() *Engine {
	return NewEngineWithClock(clockwork.NewRealClock())
}

// NewEngineWithClock is NewEngine with an injectable clock, so tests
// can advance the sliding-limiter window without sleeping.
func NewEngineWithClock(clock clockwork.Clock) *Engine {
	return &Engine{counters: make(map[uuid.UUID][]time.Time), clock: clock}
}

// CheckTool reports whether tool is in the policy's allow-list. An
// empty AllowedTools list permits every tool.
func (e *Engine) CheckTool(policy *vault.PolicyRule, tool string) error {
	if len(policy.AllowedTools) == 0 {
		return nil
	}
	for _, t := range policy.AllowedTools {
		if t == tool {
			return nil
		}
	}
	return vaulterr.PolicyDenied("tool %q not allowed for this credential", tool)
}

// CheckHTTPURL reports whether url matches one of the policy's URL
// glob patterns. An empty pattern list permits any URL.
func (e *Engine) CheckHTTPURL(policy *vault.PolicyRule, url string) error {
	if len(policy.HTTPURLPatterns) == 0 {
		return nil
	}
	for _, pattern := range policy.HTTPURLPatterns {
		if globMatch(url, pattern) {
			return nil
		}
	}
	return vaulterr.PolicyDenied("URL %q not allowed by policy", url)
}

// CheckSSHCommand reports whether command matches one of the policy's
// command glob patterns. An empty pattern list permits any command.
func (e *Engine) CheckSSHCommand(policy *vault.PolicyRule, command string) error {
	if len(policy.SSHCommandPatterns) == 0 {
		return nil
	}
	for _, pattern := range policy.SSHCommandPatterns {
		if globMatch(command, pattern) {
			return nil
		}
	}
	return vaulterr.PolicyDenied("SSH command not allowed by policy")
}

// CheckSMTPRecipient reports whether recipient matches one of the
// policy's recipient glob patterns. An empty pattern list permits any
// recipient.
func (e *Engine) CheckSMTPRecipient(policy *vault.PolicyRule, recipient string) error {
	if len(policy.SMTPAllowedRecipients) == 0 {
		return nil
	}
	for _, pattern := range policy.SMTPAllowedRecipients {
		if globMatch(recipient, pattern) {
			return nil
		}
	}
	return vaulterr.PolicyDenied("recipient %q not allowed by policy", recipient)
}

// CheckSQLQuery enforces read-only access unless the policy explicitly
// sets SQLAllowWrite. The check is a prefix test against the trimmed,
// upper-cased query, so it does not understand comments or CTEs that
// open with a write verb; it is a guardrail against accidental writes,
// not a SQL parser.
func (e *Engine) CheckSQLQuery(policy *vault.PolicyRule, query string) error {
	if policy.SQLAllowWrite {
		return nil
	}

	trimmed := strings.ToUpper(strings.TrimSpace(query))
	for _, keyword := range writeKeywords {
		if strings.HasPrefix(trimmed, keyword) {
			return vaulterr.PolicyDenied("write queries not allowed for this credential (starts with %s)", keyword)
		}
	}
	return nil
}

// CheckRateLimit records a request against policy's RateLimit and
// reports whether the credential is still under its sliding-window
// budget. A nil RateLimit permits unlimited requests.
func (e *Engine) CheckRateLimit(policy *vault.PolicyRule) error {
	if policy.RateLimit == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	window := time.Duration(policy.RateLimit.WindowSecs) * time.Second
	now := e.clock.Now()

	entries := e.counters[policy.CredentialID]
	kept := entries[:0]
	for _, t := range entries {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}

	if uint32(len(kept)) >= policy.RateLimit.MaxRequests {
		e.counters[policy.CredentialID] = kept
		return vaulterr.PolicyDenied("rate limit exceeded: %d/%d requests in %d seconds",
			len(kept), policy.RateLimit.MaxRequests, policy.RateLimit.WindowSecs)
	}

	e.counters[policy.CredentialID] = append(kept, now)
	return nil
}
