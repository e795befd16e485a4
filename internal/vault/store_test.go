package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/passman/vault/internal/vaulterr"
)

func setup(t *testing.T) *Vault {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "vault.json"), filepath.Join(dir, "audit.jsonl"))
}

func TestFullLifecycle(t *testing.T) {
	v := setup(t)
	const password = "integration-test-pw-2024"

	require.False(t, v.Exists())
	require.NoError(t, v.Create(password))
	require.True(t, v.Exists())
	require.True(t, v.IsUnlocked())

	count, err := v.CredentialCount()
	require.NoError(t, err)
	require.Equal(t, 0, count)

	apiID, err := v.StoreCredential(
		"GitHub Token",
		KindAPIToken,
		Environment{Tier: EnvDevelopment},
		[]string{"github", "ci"},
		"Main GitHub PAT",
		APITokenSecret{Token: "ghp_test123456789", HeaderName: "Authorization", Prefix: "Bearer "},
	)
	require.NoError(t, err)

	dbID, err := v.StoreCredential(
		"Prod Postgres",
		KindDatabaseConnection,
		Environment{Tier: EnvProduction},
		[]string{"database"},
		"",
		DatabaseConnectionSecret{
			Driver: DriverPostgres, Host: "db.example.com", Port: 5432,
			Database: "myapp", Username: "admin", Password: "super-secret-db-pw",
		},
	)
	require.NoError(t, err)
	require.NotEqual(t, apiID, dbID)

	count, err = v.CredentialCount()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	all, err := v.ListCredentials(ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	apiKind := KindAPIToken
	apiOnly, err := v.ListCredentials(ListFilter{Kind: &apiKind})
	require.NoError(t, err)
	require.Len(t, apiOnly, 1)
	require.Equal(t, "GitHub Token", apiOnly[0].Name)

	tag := "ci"
	tagged, err := v.ListCredentials(ListFilter{Tag: &tag})
	require.NoError(t, err)
	require.Len(t, tagged, 1)

	search, err := v.SearchCredentials("github")
	require.NoError(t, err)
	require.Len(t, search, 1)

	search2, err := v.SearchCredentials("POSTGRES")
	require.NoError(t, err)
	require.Len(t, search2, 1)

	meta, err := v.GetCredentialMeta(apiID)
	require.NoError(t, err)
	require.Equal(t, "GitHub Token", meta.Name)
	require.Equal(t, KindAPIToken, meta.Kind)

	secret, err := v.GetCredentialSecret(apiID)
	require.NoError(t, err)
	tok, ok := secret.(APITokenSecret)
	require.True(t, ok)
	require.Equal(t, "ghp_test123456789", tok.Token)

	policy, err := v.GetPolicy(apiID)
	require.NoError(t, err)
	require.Nil(t, policy)

	require.NoError(t, v.SavePolicy(PolicyRule{
		CredentialID:    apiID,
		AllowedTools:    []string{"http_request"},
		HTTPURLPatterns: []string{"https://api.github.com/*"},
		RateLimit:       &RateLimit{MaxRequests: 100, WindowSecs: 3600},
	}))

	saved, err := v.GetPolicy(apiID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, []string{"http_request"}, saved.AllowedTools)

	removed, err := v.DeletePolicy(apiID)
	require.NoError(t, err)
	require.True(t, removed)

	deleted, err := v.DeleteCredential(dbID)
	require.NoError(t, err)
	require.True(t, deleted)

	count, err = v.CredentialCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	v.Lock()
	require.False(t, v.IsUnlocked())

	n, err := v.Unlock(password)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCreateAlreadyExists(t *testing.T) {
	v := setup(t)
	require.NoError(t, v.Create("pw"))
	err := v.Create("pw")
	require.True(t, trace.IsAlreadyExists(err))
}

func TestUnlockWrongPassword(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "vault.json")
	v := New(vaultPath, filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, v.Create("p1"))
	before, err := os.ReadFile(vaultPath)
	require.NoError(t, err)

	v2 := New(vaultPath, filepath.Join(dir, "audit.jsonl"))
	_, err = v2.Unlock("p2")
	require.True(t, vaulterr.IsInvalidPassword(err))

	after, err := os.ReadFile(vaultPath)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestLockedOperationsFail(t *testing.T) {
	v := setup(t)
	require.NoError(t, v.Create("pw"))
	v.Lock()

	_, err := v.CredentialCount()
	require.True(t, vaulterr.IsLocked(err))

	_, err = v.StoreCredential("x", KindPassword, Environment{Tier: EnvLocal}, nil, "", PasswordSecret{Username: "u", Password: "p"})
	require.True(t, vaulterr.IsLocked(err))
}

func TestReloadAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "vault.json")
	auditPath := filepath.Join(dir, "audit.jsonl")

	a := New(vaultPath, auditPath)
	require.NoError(t, a.Create("shared-pw"))

	b := New(vaultPath, auditPath)
	_, err := b.Unlock("shared-pw")
	require.NoError(t, err)

	_, err = a.StoreCredential("New One", KindPassword, Environment{Tier: EnvLocal}, nil, "", PasswordSecret{Username: "u", Password: "p"})
	require.NoError(t, err)

	countB, err := b.CredentialCount()
	require.NoError(t, err)
	require.Equal(t, 0, countB)

	require.NoError(t, b.Reload())

	countB, err = b.CredentialCount()
	require.NoError(t, err)
	require.Equal(t, 1, countB)
}

func TestSearchIsOrderedBoolean(t *testing.T) {
	v := setup(t)
	require.NoError(t, v.Create("pw"))

	_, err := v.StoreCredential("alpha", KindPassword, Environment{Tier: EnvLocal}, []string{"prod"}, "", PasswordSecret{Username: "u", Password: "p"})
	require.NoError(t, err)
	_, err = v.StoreCredential("beta", KindPassword, Environment{Tier: EnvLocal}, nil, "mentions alpha in notes", PasswordSecret{Username: "u", Password: "p"})
	require.NoError(t, err)

	results, err := v.SearchCredentials("alpha")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "alpha", results[0].Name)
	require.Equal(t, "beta", results[1].Name)
}
