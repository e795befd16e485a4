// Package vault implements the encrypted credential store (component
// C2): the locked/unlocked state machine, atomic on-disk persistence,
// cross-process file locking, and the file-watch reload path.
package vault

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/passman/vault/internal/audit"
	"github.com/passman/vault/internal/cryptoprim"
	"github.com/passman/vault/internal/vaulterr"
)

var log = logrus.WithFields(logrus.Fields{
	trace.Component: "vault:store",
})

// state is the vault's two-state machine: either the key and decoded
// file are both held in memory, or neither is.
type state struct {
	key  *cryptoprim.Key
	data *VaultFile
}

func (s state) unlocked() bool { return s.key != nil }

// Vault is the thread-safe handle every proxy, policy check, and the
// file watcher share. All mutable state is behind a single
// reader-writer lock, per spec §4.2's concurrency discipline.
type Vault struct {
	mu sync.RWMutex

	vaultPath string
	auditLog  *audit.Log

	st state
}

// New returns a Vault handle pointing at the given vault file and audit
// log paths. The vault starts Locked; call Create or Unlock before any
// other method.
func New(vaultPath, auditPath string) *Vault {
	return &Vault{
		vaultPath: vaultPath,
		auditLog:  audit.New(auditPath),
	}
}

// NewWithDefaults returns a Vault at the default $HOME/.passman paths.
func NewWithDefaults() *Vault {
	return New(DefaultVaultPath(), DefaultAuditPath())
}

// VaultPath returns the path of the vault's backing file.
func (v *Vault) VaultPath() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.vaultPath
}

// Exists reports whether a vault file is present on disk.
func (v *Vault) Exists() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return vaultExists(v.vaultPath)
}

// IsUnlocked reports whether the vault currently holds a derived key.
func (v *Vault) IsUnlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.st.unlocked()
}

// Create writes a new, empty vault file protected by password. It
// fails with AlreadyExists if a file is already present at the vault
// path.
func (v *Vault) Create(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if vaultExists(v.vaultPath) {
		return trace.AlreadyExists("vault already exists at %s", v.vaultPath)
	}

	salt, err := cryptoprim.GenerateSalt()
	if err != nil {
		return trace.Wrap(err)
	}
	params := cryptoprim.DefaultKDFParams()
	key := cryptoprim.DeriveKey(password, salt, params)

	verification, err := key.CreateVerification()
	if err != nil {
		key.Zero()
		return trace.Wrap(err)
	}

	vf := &VaultFile{
		Version:      schemaVersion,
		KDFParams:    params,
		Salt:         salt,
		Verification: toEncryptedBlob(verification),
		Credentials:  []StoredCredential{},
		Categories:   []Category{},
		Policies:     []PolicyRule{},
	}

	if err := saveVaultFile(v.vaultPath, vf); err != nil {
		key.Zero()
		return trace.Wrap(err)
	}

	v.st = state{key: key, data: vf}
	return nil
}

// Unlock loads the vault file from disk and derives a key from
// password, returning the credential count on success. On a wrong
// password it leaves the vault Locked and returns InvalidPassword.
func (v *Vault) Unlock(password string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	vf, err := loadVaultFile(v.vaultPath)
	if err != nil {
		return 0, trace.Wrap(err)
	}

	key := cryptoprim.DeriveKey(password, vf.Salt, vf.KDFParams)
	if !key.VerifyPassword(vf.Verification.toCryptoprim()) {
		key.Zero()
		return 0, vaulterr.InvalidPassword()
	}

	v.st = state{key: key, data: vf}
	return len(vf.Credentials), nil
}

// Lock zeroes the derived key and discards the decoded vault file from
// memory.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.st.key.Zero()
	v.st = state{}
}

// Reload re-reads the vault file from disk while Unlocked, re-verifying
// that the held key still opens the new verification blob (another
// process may have re-keyed the file). If verification fails, the
// vault transitions to Locked and InvalidPassword is returned. A reload
// while Locked is a no-op.
func (v *Vault) Reload() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.st.unlocked() {
		return nil
	}

	vf, err := loadVaultFile(v.vaultPath)
	if err != nil {
		return trace.Wrap(err)
	}

	if !v.st.key.VerifyPassword(vf.Verification.toCryptoprim()) {
		v.st.key.Zero()
		v.st = state{}
		return vaulterr.InvalidPassword()
	}

	v.st.data = vf
	return nil
}

// CredentialCount returns the number of credentials currently held.
func (v *Vault) CredentialCount() (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return 0, vaulterr.Locked()
	}
	return len(v.st.data.Credentials), nil
}

// StoreCredential adds a new credential and persists the vault,
// returning the assigned ID.
func (v *Vault) StoreCredential(name string, kind CredentialKind, env Environment, tags []string, notes string, secret Secret) (uuid.UUID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.st.unlocked() {
		return uuid.Nil, vaulterr.Locked()
	}

	secretJSON, err := MarshalSecret(secret)
	if err != nil {
		return uuid.Nil, trace.Wrap(err)
	}
	encrypted, err := v.st.key.Encrypt(secretJSON)
	if err != nil {
		return uuid.Nil, trace.Wrap(err)
	}

	id := uuid.New()
	now := time.Now().UTC()
	meta := CredentialMeta{
		ID:          id,
		Name:        name,
		Kind:        kind,
		Environment: env,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
		Notes:       notes,
	}
	v.st.data.Credentials = append(v.st.data.Credentials, StoredCredential{
		Meta:   meta,
		Secret: toEncryptedBlob(encrypted),
	})

	if err := saveVaultFile(v.vaultPath, v.st.data); err != nil {
		return uuid.Nil, trace.Wrap(err)
	}

	credName := name
	v.appendAudit(audit.Entry{
		Timestamp:    now,
		CredentialID: &id,
		CredentialName: &credName,
		Action:       audit.ActionCredentialStore,
		Tool:         "credential_store",
		Success:      true,
	})

	return id, nil
}

// GetCredentialMeta returns a credential's plaintext metadata.
func (v *Vault) GetCredentialMeta(id uuid.UUID) (CredentialMeta, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return CredentialMeta{}, vaulterr.Locked()
	}
	sc := v.find(id)
	if sc == nil {
		return CredentialMeta{}, trace.NotFound("credential not found: %s", id)
	}
	return sc.Meta, nil
}

// GetCredentialSecret decrypts and returns a credential's secret.
func (v *Vault) GetCredentialSecret(id uuid.UUID) (Secret, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return nil, vaulterr.Locked()
	}
	sc := v.find(id)
	if sc == nil {
		return nil, trace.NotFound("credential not found: %s", id)
	}
	plaintext, err := v.st.key.Decrypt(sc.Secret.toCryptoprim())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	secret, err := UnmarshalSecret(plaintext)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return secret, nil
}

// ListFilter narrows the results of ListCredentials.
type ListFilter struct {
	Kind        *CredentialKind
	Environment *Environment
	Tag         *string
}

// ListCredentials returns credential metadata matching filter.
func (v *Vault) ListCredentials(filter ListFilter) ([]CredentialMeta, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return nil, vaulterr.Locked()
	}

	var out []CredentialMeta
	for _, c := range v.st.data.Credentials {
		if filter.Kind != nil && c.Meta.Kind != *filter.Kind {
			continue
		}
		if filter.Environment != nil && c.Meta.Environment != *filter.Environment {
			continue
		}
		if filter.Tag != nil && !containsString(c.Meta.Tags, *filter.Tag) {
			continue
		}
		out = append(out, c.Meta)
	}
	return out, nil
}

// SearchCredentials returns credentials whose name, tags, or notes
// contain query case-insensitively. No ranking is applied; results are
// returned in vault storage order.
func (v *Vault) SearchCredentials(query string) ([]CredentialMeta, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return nil, vaulterr.Locked()
	}

	q := strings.ToLower(query)
	var out []CredentialMeta
	for _, c := range v.st.data.Credentials {
		if strings.Contains(strings.ToLower(c.Meta.Name), q) ||
			tagsContain(c.Meta.Tags, q) ||
			strings.Contains(strings.ToLower(c.Meta.Notes), q) {
			out = append(out, c.Meta)
		}
	}
	return out, nil
}

// UpdateCredentialSecret re-encrypts a credential's secret under the
// current key and bumps its UpdatedAt stamp.
func (v *Vault) UpdateCredentialSecret(id uuid.UUID, secret Secret) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.st.unlocked() {
		return vaulterr.Locked()
	}

	idx := v.findIndex(id)
	if idx < 0 {
		return trace.NotFound("credential not found: %s", id)
	}

	secretJSON, err := MarshalSecret(secret)
	if err != nil {
		return trace.Wrap(err)
	}
	encrypted, err := v.st.key.Encrypt(secretJSON)
	if err != nil {
		return trace.Wrap(err)
	}

	v.st.data.Credentials[idx].Secret = toEncryptedBlob(encrypted)
	v.st.data.Credentials[idx].Meta.UpdatedAt = time.Now().UTC()

	return trace.Wrap(saveVaultFile(v.vaultPath, v.st.data))
}

// MetaUpdate carries the fields UpdateCredentialMeta may change; a nil
// pointer leaves the corresponding field untouched.
type MetaUpdate struct {
	Name        *string
	Environment *Environment
	Tags        *[]string
	Notes       *string
}

// UpdateCredentialMeta applies a partial update to a credential's
// metadata.
func (v *Vault) UpdateCredentialMeta(id uuid.UUID, update MetaUpdate) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.st.unlocked() {
		return vaulterr.Locked()
	}

	idx := v.findIndex(id)
	if idx < 0 {
		return trace.NotFound("credential not found: %s", id)
	}

	meta := &v.st.data.Credentials[idx].Meta
	if update.Name != nil {
		meta.Name = *update.Name
	}
	if update.Environment != nil {
		meta.Environment = *update.Environment
	}
	if update.Tags != nil {
		meta.Tags = *update.Tags
	}
	if update.Notes != nil {
		meta.Notes = *update.Notes
	}
	meta.UpdatedAt = time.Now().UTC()

	return trace.Wrap(saveVaultFile(v.vaultPath, v.st.data))
}

// DeleteCredential removes a credential, reporting whether it was
// present.
func (v *Vault) DeleteCredential(id uuid.UUID) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.st.unlocked() {
		return false, vaulterr.Locked()
	}

	idx := v.findIndex(id)
	if idx < 0 {
		return false, nil
	}

	creds := v.st.data.Credentials
	v.st.data.Credentials = append(creds[:idx], creds[idx+1:]...)

	if err := saveVaultFile(v.vaultPath, v.st.data); err != nil {
		return false, trace.Wrap(err)
	}

	v.appendAudit(audit.Entry{
		Timestamp:    time.Now().UTC(),
		CredentialID: &id,
		Action:       audit.ActionCredentialDelete,
		Tool:         "credential_delete",
		Success:      true,
	})

	return true, nil
}

// GetPolicy returns the policy rule for credentialID, if one exists.
func (v *Vault) GetPolicy(credentialID uuid.UUID) (*PolicyRule, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return nil, vaulterr.Locked()
	}
	for i := range v.st.data.Policies {
		if v.st.data.Policies[i].CredentialID == credentialID {
			p := v.st.data.Policies[i]
			return &p, nil
		}
	}
	return nil, nil
}

// SavePolicy upserts the policy rule for its credential, rejecting
// rules whose credential_id does not resolve (invariant I2).
func (v *Vault) SavePolicy(rule PolicyRule) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.st.unlocked() {
		return vaulterr.Locked()
	}

	if v.findIndex(rule.CredentialID) < 0 {
		return trace.NotFound("credential not found: %s", rule.CredentialID)
	}

	policies := v.st.data.Policies[:0:0]
	for _, p := range v.st.data.Policies {
		if p.CredentialID != rule.CredentialID {
			policies = append(policies, p)
		}
	}
	v.st.data.Policies = append(policies, rule)

	return trace.Wrap(saveVaultFile(v.vaultPath, v.st.data))
}

// DeletePolicy removes the policy for credentialID, reporting whether
// one was present.
func (v *Vault) DeletePolicy(credentialID uuid.UUID) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.st.unlocked() {
		return false, vaulterr.Locked()
	}

	before := len(v.st.data.Policies)
	policies := v.st.data.Policies[:0:0]
	for _, p := range v.st.data.Policies {
		if p.CredentialID != credentialID {
			policies = append(policies, p)
		}
	}
	v.st.data.Policies = policies
	removed := len(policies) < before
	if removed {
		if err := saveVaultFile(v.vaultPath, v.st.data); err != nil {
			return false, trace.Wrap(err)
		}
	}
	return removed, nil
}

// GetAllPolicies returns every configured policy rule.
func (v *Vault) GetAllPolicies() ([]PolicyRule, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return nil, vaulterr.Locked()
	}
	out := make([]PolicyRule, len(v.st.data.Policies))
	copy(out, v.st.data.Policies)
	return out, nil
}

// GetEnvironments returns the sorted, deduplicated set of environment
// names in use across all stored credentials.
func (v *Vault) GetEnvironments() ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return nil, vaulterr.Locked()
	}
	seen := map[string]struct{}{}
	var envs []string
	for _, c := range v.st.data.Credentials {
		name := c.Meta.Environment.String()
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			envs = append(envs, name)
		}
	}
	sort.Strings(envs)
	return envs, nil
}

// ListCategories returns every named category.
func (v *Vault) ListCategories() ([]Category, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.st.unlocked() {
		return nil, vaulterr.Locked()
	}
	out := make([]Category, len(v.st.data.Categories))
	copy(out, v.st.data.Categories)
	return out, nil
}

// SaveCategory upserts a category by name.
func (v *Vault) SaveCategory(c Category) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.st.unlocked() {
		return vaulterr.Locked()
	}
	cats := v.st.data.Categories[:0:0]
	for _, existing := range v.st.data.Categories {
		if existing.Name != c.Name {
			cats = append(cats, existing)
		}
	}
	v.st.data.Categories = append(cats, c)
	return trace.Wrap(saveVaultFile(v.vaultPath, v.st.data))
}

// DeleteCategory removes a category by name, reporting whether it was
// present.
func (v *Vault) DeleteCategory(name string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.st.unlocked() {
		return false, vaulterr.Locked()
	}
	before := len(v.st.data.Categories)
	cats := v.st.data.Categories[:0:0]
	for _, c := range v.st.data.Categories {
		if c.Name != name {
			cats = append(cats, c)
		}
	}
	v.st.data.Categories = cats
	removed := len(cats) < before
	if removed {
		if err := saveVaultFile(v.vaultPath, v.st.data); err != nil {
			return false, trace.Wrap(err)
		}
	}
	return removed, nil
}

// LogAudit appends entry to the audit log.
func (v *Vault) LogAudit(entry audit.Entry) error {
	return v.auditLog.Append(entry)
}

// appendAudit is LogAudit for call sites already holding v.mu; it logs
// and swallows failures the way the original implementation treats
// audit writes as best-effort on the success path.
func (v *Vault) appendAudit(entry audit.Entry) {
	if err := v.auditLog.Append(entry); err != nil {
		log.WithError(err).Warn("failed to append audit entry")
	}
}

// ReadAudit returns audit entries matching filter.
func (v *Vault) ReadAudit(filter audit.ReadFilter) ([]audit.Entry, error) {
	return v.auditLog.Read(filter)
}

func (v *Vault) find(id uuid.UUID) *StoredCredential {
	for i := range v.st.data.Credentials {
		if v.st.data.Credentials[i].Meta.ID == id {
			return &v.st.data.Credentials[i]
		}
	}
	return nil
}

func (v *Vault) findIndex(id uuid.UUID) int {
	for i := range v.st.data.Credentials {
		if v.st.data.Credentials[i].Meta.ID == id {
			return i
		}
	}
	return -1
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func tagsContain(tags []string, lowerQuery string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), lowerQuery) {
			return true
		}
	}
	return false
}
