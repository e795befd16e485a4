package vault

import (
	"github.com/passman/vault/internal/cryptoprim"
)

// schemaVersion is the current on-disk vault file format version.
const schemaVersion = 1

// EncryptedBlob is a nonce/ciphertext pair, the on-disk form of
// cryptoprim.EncryptedBlob.
type EncryptedBlob struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func toEncryptedBlob(b cryptoprim.EncryptedBlob) EncryptedBlob {
	return EncryptedBlob{Nonce: b.Nonce, Ciphertext: b.Ciphertext}
}

func (b EncryptedBlob) toCryptoprim() cryptoprim.EncryptedBlob {
	return cryptoprim.EncryptedBlob{Nonce: b.Nonce, Ciphertext: b.Ciphertext}
}

// StoredCredential is one entry in the vault file's credentials list:
// plaintext metadata alongside the encrypted secret blob.
type StoredCredential struct {
	Meta   CredentialMeta `json:"meta"`
	Secret EncryptedBlob  `json:"secret"`
}

// VaultFile is the top-level on-disk document.
type VaultFile struct {
	Version      uint32               `json:"version"`
	KDFParams    cryptoprim.KDFParams `json:"kdf_params"`
	Salt         []byte               `json:"salt"`
	Verification EncryptedBlob        `json:"verification"`
	Credentials  []StoredCredential   `json:"credentials"`
	Categories   []Category           `json:"categories"`
	Policies     []PolicyRule         `json:"policies"`
}
