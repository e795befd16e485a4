// Package audit implements the append-only, newline-delimited audit
// trail: one JSON record per proxied operation or vault lifecycle
// event, written with O_APPEND semantics and read back with lenient,
// best-effort parsing.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	trace.Component: "vault:audit",
})

// Action names the kind of operation an Entry records.
type Action string

// The actions the audit log can record.
const (
	ActionVaultUnlock      Action = "vault_unlock"
	ActionVaultLock        Action = "vault_lock"
	ActionCredentialList   Action = "credential_list"
	ActionCredentialSearch Action = "credential_search"
	ActionCredentialInfo   Action = "credential_info"
	ActionCredentialStore  Action = "credential_store"
	ActionCredentialDelete Action = "credential_delete"
	ActionHTTPRequest      Action = "http_request"
	ActionSSHExec          Action = "ssh_exec"
	ActionSQLQuery         Action = "sql_query"
	ActionSendEmail        Action = "send_email"
	ActionAuditView        Action = "audit_view"
)

// Entry is one line of the audit log.
type Entry struct {
	Timestamp      time.Time  `json:"timestamp"`
	CredentialID   *uuid.UUID `json:"credential_id,omitempty"`
	CredentialName *string    `json:"credential_name,omitempty"`
	Action         Action     `json:"action"`
	Tool           string     `json:"tool"`
	Success        bool       `json:"success"`
	Details        *string    `json:"details,omitempty"`
}

// Log appends to and reads from a single JSONL file on disk. It has no
// in-memory state of its own: every call re-reads or re-opens the file,
// matching the vault's "audit writes are short, mutex-free O_APPEND"
// design (spec §5).
type Log struct {
	path string
}

// New returns a Log backed by the file at path. The file and its parent
// directory are created lazily on first Append.
func New(path string) *Log {
	return &Log{path: path}
}

// Append writes one entry to the log, creating the file and its parent
// directory if necessary. The append is a single buffered write inside
// O_APPEND mode, relying on the same PIPE_BUF atomicity argument the
// specification documents for short lines.
func (l *Log) Append(entry Entry) error {
	if err := ensureDir(l.path); err != nil {
		return trace.Wrap(err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return trace.Wrap(err, "failed to serialize audit entry")
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// ReadFilter narrows which entries Read returns.
type ReadFilter struct {
	CredentialID *uuid.UUID
	Since        *time.Time
	Limit        int
}

// Read loads every entry from the log, applies filter, sorts the
// result descending by timestamp (most recent first), and truncates to
// filter.Limit if it is positive. A missing file is not an error: it
// yields an empty result. Malformed lines are skipped, not fatal.
func (l *Log) Read(filter ReadFilter) ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, trace.ConvertSystemError(err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			log.WithError(err).Debug("skipping malformed audit line")
			continue
		}
		if filter.CredentialID != nil {
			if e.CredentialID == nil || *e.CredentialID != *filter.CredentialID {
				continue
			}
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	return entries, nil
}

func bytesTrimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
