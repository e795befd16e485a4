// Package proxy executes the four credential-proxy operations —
// http_request, ssh_exec, sql_query, send_email — injecting a vault
// credential's secret material into an outbound call and returning a
// sanitized result. Pipeline ties secret retrieval, policy
// enforcement, and audit logging into one uniform sequence so every
// proxy tool is checked and logged the same way.
package proxy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/passman/vault/internal/audit"
	"github.com/passman/vault/internal/policy"
	"github.com/passman/vault/internal/vault"
)

// Pipeline wires a Vault and a policy Engine together for the proxy
// tools. It holds no state of its own beyond those two references.
type Pipeline struct {
	Vault  *vault.Vault
	Policy *policy.Engine
}

// NewPipeline returns a Pipeline backed by v and p.
func NewPipeline(v *vault.Vault, p *policy.Engine) *Pipeline {
	return &Pipeline{Vault: v, Policy: p}
}

// parseCredentialID validates the caller-supplied UUID string, the
// first step of every proxy tool.
func parseCredentialID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, trace.BadParameter("invalid credential UUID: %v", err)
	}
	return id, nil
}

// checkContext bundles everything one policy-gated call needs: the
// secret to dispatch on, the loaded policy (nil if none is set), and
// the best-effort credential name for the audit record.
type checkContext struct {
	id     uuid.UUID
	secret vault.Secret
	policy *vault.PolicyRule
	name   string
}

func (p *Pipeline) load(credentialID uuid.UUID) (*checkContext, error) {
	secret, err := p.Vault.GetCredentialSecret(credentialID)
	if err != nil {
		return nil, err
	}

	var name string
	if meta, err := p.Vault.GetCredentialMeta(credentialID); err == nil {
		name = meta.Name
	}

	var rule *vault.PolicyRule
	if pr, err := p.Vault.GetPolicy(credentialID); err == nil {
		rule = pr
	}

	return &checkContext{id: credentialID, secret: secret, policy: rule, name: name}, nil
}

// denyAndAudit logs a policy-denial audit entry and returns the
// originating error, so callers can `return nil, p.denyAndAudit(...)`.
func (p *Pipeline) denyAndAudit(ctx *checkContext, action audit.Action, tool string, cause error) error {
	p.audit(ctx, action, tool, false, cause.Error())
	return cause
}

// sanitizeErr scrubs a failed executor's error text of the credential's
// own secret material before it reaches the caller — the same
// redaction applied to HTTP bodies, SSH output, and SQL cells, since a
// driver or transport error can just as easily echo back a DSN
// fragment or an Authorization header value.
func sanitizeErr(ctx *checkContext, err error) error {
	return trace.Wrap(errors.New(sanitize(err.Error(), ctx.secret.SecretStrings())))
}

func (p *Pipeline) audit(ctx *checkContext, action audit.Action, tool string, success bool, details string) {
	var credID *uuid.UUID
	var credName *string
	if ctx.id != (uuid.UUID{}) {
		id := ctx.id
		credID = &id
	}
	if ctx.name != "" {
		name := ctx.name
		credName = &name
	}

	sanitized := sanitize(details, ctx.secret.SecretStrings())
	entry := audit.Entry{
		Timestamp:      time.Now().UTC(),
		CredentialID:   credID,
		CredentialName: credName,
		Action:         action,
		Tool:           tool,
		Success:        success,
		Details:        &sanitized,
	}
	_ = p.Vault.LogAudit(entry)
}

// HTTPRequest runs the http_request tool: policy checks tool access
// and the target URL, then rate limit, before dispatching.
func (p *Pipeline) HTTPRequest(credentialIDRaw string, input HTTPRequestInput) (*HTTPResponse, error) {
	id, err := parseCredentialID(credentialIDRaw)
	if err != nil {
		return nil, err
	}
	ctx, err := p.load(id)
	if err != nil {
		return nil, err
	}

	if ctx.policy != nil {
		if err := p.Policy.CheckTool(ctx.policy, "http_request"); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionHTTPRequest, "http_request", err)
		}
		if err := p.Policy.CheckHTTPURL(ctx.policy, input.URL); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionHTTPRequest, "http_request", err)
		}
		if err := p.Policy.CheckRateLimit(ctx.policy); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionHTTPRequest, "http_request", err)
		}
	}

	out, err := ExecuteHTTP(ctx.secret, input)
	if err != nil {
		p.audit(ctx, audit.ActionHTTPRequest, "http_request", false, err.Error())
		return nil, sanitizeErr(ctx, err)
	}
	p.audit(ctx, audit.ActionHTTPRequest, "http_request", true, fmt.Sprintf("%s %s", input.Method, input.URL))
	return out, nil
}

// SSHExec runs the ssh_exec tool: policy checks tool access and the
// command pattern, then rate limit, before dispatching.
func (p *Pipeline) SSHExec(credentialIDRaw string, command string) (*SSHExecOutput, error) {
	id, err := parseCredentialID(credentialIDRaw)
	if err != nil {
		return nil, err
	}
	ctx, err := p.load(id)
	if err != nil {
		return nil, err
	}

	if ctx.policy != nil {
		if err := p.Policy.CheckTool(ctx.policy, "ssh_exec"); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionSSHExec, "ssh_exec", err)
		}
		if err := p.Policy.CheckSSHCommand(ctx.policy, command); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionSSHExec, "ssh_exec", err)
		}
		if err := p.Policy.CheckRateLimit(ctx.policy); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionSSHExec, "ssh_exec", err)
		}
	}

	out, err := ExecuteSSH(ctx.secret, command)
	if err != nil {
		p.audit(ctx, audit.ActionSSHExec, "ssh_exec", false, err.Error())
		return nil, sanitizeErr(ctx, err)
	}
	p.audit(ctx, audit.ActionSSHExec, "ssh_exec", out.ExitCode == 0, command)
	return out, nil
}

// SQLQuery runs the sql_query tool: policy checks tool access and the
// read/write verb, then rate limit, before dispatching.
func (p *Pipeline) SQLQuery(credentialIDRaw string, query string, params []interface{}) (*SQLQueryOutput, error) {
	id, err := parseCredentialID(credentialIDRaw)
	if err != nil {
		return nil, err
	}
	ctx, err := p.load(id)
	if err != nil {
		return nil, err
	}

	if ctx.policy != nil {
		if err := p.Policy.CheckTool(ctx.policy, "sql_query"); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionSQLQuery, "sql_query", err)
		}
		if err := p.Policy.CheckSQLQuery(ctx.policy, query); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionSQLQuery, "sql_query", err)
		}
		if err := p.Policy.CheckRateLimit(ctx.policy); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionSQLQuery, "sql_query", err)
		}
	}

	out, err := ExecuteSQL(ctx.secret, query, params)
	if err != nil {
		p.audit(ctx, audit.ActionSQLQuery, "sql_query", false, err.Error())
		return nil, sanitizeErr(ctx, err)
	}
	p.audit(ctx, audit.ActionSQLQuery, "sql_query", true, query)
	return out, nil
}

// SendEmail runs the send_email tool: policy checks tool access and
// every to/cc/bcc recipient, then rate limit, before dispatching.
func (p *Pipeline) SendEmail(credentialIDRaw string, input SendEmailInput) (*SendEmailOutput, error) {
	id, err := parseCredentialID(credentialIDRaw)
	if err != nil {
		return nil, err
	}
	ctx, err := p.load(id)
	if err != nil {
		return nil, err
	}

	if ctx.policy != nil {
		if err := p.Policy.CheckTool(ctx.policy, "send_email"); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionSendEmail, "send_email", err)
		}
		recipients := append(append(append([]string{}, input.To...), input.CC...), input.BCC...)
		for _, r := range recipients {
			if err := p.Policy.CheckSMTPRecipient(ctx.policy, r); err != nil {
				return nil, p.denyAndAudit(ctx, audit.ActionSendEmail, "send_email", err)
			}
		}
		if err := p.Policy.CheckRateLimit(ctx.policy); err != nil {
			return nil, p.denyAndAudit(ctx, audit.ActionSendEmail, "send_email", err)
		}
	}

	out, err := ExecuteSMTP(ctx.secret, input)
	if err != nil {
		p.audit(ctx, audit.ActionSendEmail, "send_email", false, err.Error())
		return nil, sanitizeErr(ctx, err)
	}
	p.audit(ctx, audit.ActionSendEmail, "send_email", out.Success, "to: "+strings.Join(input.To, ", "))
	return out, nil
}
