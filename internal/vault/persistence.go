package vault

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/gravitational/trace"
)

// DefaultVaultDir returns $HOME/.passman (or $USERPROFILE/.passman, or
// ./.passman as a last resort).
func DefaultVaultDir() string {
	return filepath.Join(homeDir(), ".passman")
}

// DefaultVaultPath returns the default vault file location.
func DefaultVaultPath() string {
	return filepath.Join(DefaultVaultDir(), "vault.json")
}

// DefaultAuditPath returns the default audit log location.
func DefaultAuditPath() string {
	return filepath.Join(DefaultVaultDir(), "audit.jsonl")
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	if h := os.Getenv("USERPROFILE"); h != "" {
		return h
	}
	return "."
}

// vaultFilePerm is the permission mode a newly written vault file gets:
// owner read/write only.
const vaultFilePerm = 0600

// ensureDir creates the parent directory of path if it does not exist.
func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return trace.ConvertSystemError(err)
		}
	}
	return nil
}

// vaultExists reports whether a vault file is present at path.
func vaultExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadVaultFile reads and parses the vault file at path, under a shared
// advisory lock so a concurrent writer's rename cannot be observed
// half-complete.
func loadVaultFile(path string) (*VaultFile, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	defer lock.Unlock()

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	var vf VaultFile
	if err := json.Unmarshal(contents, &vf); err != nil {
		return nil, trace.Wrap(err, "failed to parse vault file")
	}
	return &vf, nil
}

// saveVaultFile serializes vf and atomically replaces the file at path:
// write to a sibling temp file under an exclusive lock, flush, then
// rename over the real path.
func saveVaultFile(path string, vf *VaultFile) error {
	if err := ensureDir(path); err != nil {
		return trace.Wrap(err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return trace.ConvertSystemError(err)
	}
	defer lock.Unlock()

	contents, err := json.MarshalIndent(vf, "", "  ")
	if err != nil {
		return trace.Wrap(err, "failed to serialize vault")
	}

	tempPath := path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, vaultFilePerm)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	if _, err := f.Write(contents); err != nil {
		f.Close()
		return trace.ConvertSystemError(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return trace.ConvertSystemError(err)
	}
	if err := f.Close(); err != nil {
		return trace.ConvertSystemError(err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}
