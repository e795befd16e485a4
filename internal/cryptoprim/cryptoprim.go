// Package cryptoprim provides the low-level primitives the vault builds
// on: Argon2id key derivation, AES-256-GCM authenticated encryption, and
// a zeroizing key wrapper. Nothing in this package touches disk or knows
// about credentials; it only turns passwords and plaintexts into bytes
// and back.
package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"runtime"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/argon2"
)

// KeySize is the size in bytes of derived keys and raw AES-256 keys.
const KeySize = 32

// SaltSize is the size in bytes of the random salt stored alongside a
// vault file.
const SaltSize = 32

// nonceSize is the size of a GCM nonce; fixed at 12 bytes per the NIST
// recommendation, same as the standard library's cipher.NewGCM default.
const nonceSize = 12

// verificationPlaintext is encrypted under the derived key at vault
// creation time and re-decrypted on every Unlock attempt: if it comes
// back unchanged, the supplied password was correct.
var verificationPlaintext = []byte("passman-vault-verification-v1")

// KDFParams are the Argon2id tuning knobs persisted in the vault file so
// that a vault opened later reproduces the same derived key from the
// same password.
type KDFParams struct {
	MemoryKiB   uint32 `json:"memory_kib"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultKDFParams are the parameters used for newly created vaults:
// 64 MiB of memory, 3 passes, 4-way parallelism.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		MemoryKiB:   65536,
		Iterations:  3,
		Parallelism: 4,
	}
}

// EncryptedBlob is a nonce/ciphertext pair produced by Encrypt. The GCM
// authentication tag is appended to Ciphertext by the standard library's
// Seal, matching the teacher's preference for opaque, self-contained
// wire blobs over separate tag fields.
type EncryptedBlob struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// GenerateSalt returns a fresh random salt suitable for DeriveKey.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return salt, nil
}

// DeriveKey runs Argon2id over password and salt with params, returning
// a Key ready for Encrypt/Decrypt. The caller owns the returned Key and
// must call Zero when it is no longer needed.
func DeriveKey(password string, salt []byte, params KDFParams) *Key {
	raw := argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, KeySize)
	k := &Key{}
	copy(k.bytes[:], raw)
	for i := range raw {
		raw[i] = 0
	}
	runtime.SetFinalizer(k, (*Key).Zero)
	return k
}

// Key is a 32-byte AES-256 key that zeroizes its contents on demand. It
// is not safe to copy by value; pass *Key around.
type Key struct {
	bytes [KeySize]byte
}

// Zero overwrites the key material with zeroes. Safe to call more than
// once and on a nil receiver.
func (k *Key) Zero() {
	if k == nil {
		return
	}
	for i := range k.bytes {
		k.bytes[i] = 0
	}
}

func (k *Key) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.bytes[:])
	if err != nil {
		return nil, trace.Wrap(err, "cipher init failed")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, trace.Wrap(err, "cipher init failed")
	}
	return gcm, nil
}

// Encrypt seals plaintext under k with a freshly generated random nonce.
func (k *Key) Encrypt(plaintext []byte) (EncryptedBlob, error) {
	gcm, err := k.gcm()
	if err != nil {
		return EncryptedBlob{}, trace.Wrap(err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedBlob{}, trace.ConvertSystemError(err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return EncryptedBlob{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Decrypt opens a blob previously produced by Encrypt under the same
// key, returning a crypto error if the blob has been tampered with or
// the key does not match.
func (k *Key) Decrypt(blob EncryptedBlob) ([]byte, error) {
	gcm, err := k.gcm()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	plaintext, err := gcm.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, trace.Wrap(err, "decryption failed")
	}
	return plaintext, nil
}

// CreateVerification encrypts the fixed verification plaintext under k,
// to be stored in the vault file and checked on every future Unlock.
func (k *Key) CreateVerification() (EncryptedBlob, error) {
	return k.Encrypt(verificationPlaintext)
}

// VerifyPassword attempts to decrypt blob under k and reports whether
// the result matches the known verification plaintext. A decryption
// failure is treated as a wrong password, not propagated as an error.
func (k *Key) VerifyPassword(blob EncryptedBlob) bool {
	plaintext, err := k.Decrypt(blob)
	if err != nil {
		return false
	}
	return string(plaintext) == string(verificationPlaintext)
}
