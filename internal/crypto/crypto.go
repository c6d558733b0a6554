// Package crypto is the pure, side-effect-free primitives layer (§4.2):
// sign/verify, authenticated symmetric encrypt/decrypt, BLAKE2b hashing,
// anonymous seal/unseal, and an Argon2id KDF, plus a deterministic "dummy"
// mode for byte-exact tests. go-crablet has no crypto layer of its own —
// this package is grounded on the spec's §4.2 contracts and on
// original_source/core/crypto.py for the exact dummy-mode string formats,
// expressed as idiomatic Go (stdlib ed25519 + golang.org/x/crypto rather
// than PyNaCl) the way go-crablet expresses its own pure helpers
// (typeid_helpers.go, utils.go): small funcs grouped by concern, errors
// wrapped in the project's own error type.
package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/quietcore/runtime/internal/config"
	"github.com/quietcore/runtime/internal/runtimeerr"
)

// EncryptResult is the output of Encrypt: ciphertext/nonce are raw bytes:
// callers that need the wire's hex encoding (§4.7) do so explicitly.
type EncryptResult struct {
	Ciphertext []byte
	Nonce      []byte
	Algorithm  string
}

// KDFResult is the output of KDF.
type KDFResult struct {
	DerivedKey []byte
	Salt       []byte
	Algorithm  string
}

// Primitives is the crypto abstraction every protocol handler is built
// against; Real and Dummy are the two concrete implementations selected by
// config.CryptoMode (§4.2).
type Primitives interface {
	Sign(data, priv []byte) ([]byte, error)
	Verify(data, sig, pub []byte) bool
	Encrypt(data, key []byte) (EncryptResult, error)
	// Decrypt returns (nil, false) on any failure — the spec models
	// decryption failure as an absent result, not an error (§4.2, §7
	// DecryptFailure is a pipeline-level classification, not a crypto one).
	Decrypt(ciphertext, nonce, key []byte) ([]byte, bool)
	Hash(data []byte) (string, error)
	Seal(data, recipientPub []byte) ([]byte, error)
	Unseal(sealed, priv []byte) ([]byte, bool)
	KDF(password, salt []byte) (KDFResult, error)
	// GenerateSignKeypair and GenerateBoxKeypair exist so handlers and
	// tests can create identities without reaching past this package.
	GenerateSignKeypair() (pub, priv []byte, err error)
	GenerateBoxKeypair() (pub, priv []byte, err error)
}

// New returns the Primitives implementation selected by mode.
func New(mode config.CryptoMode) Primitives {
	if mode == config.CryptoModeDummy {
		return dummyPrimitives{}
	}
	return realPrimitives{}
}

const (
	signKeySize = ed25519.PublicKeySize
	boxKeySize  = 32
)

func wrapf(op, format string, args ...any) error {
	return runtimeerr.Newf(runtimeerr.ValidationError, op, format, args...)
}

// HashWithAlgorithm validates the algorithm name before delegating to
// Primitives.Hash: §4.2 fixes hash() to BLAKE2b only and requires any other
// named algorithm to fail with UnsupportedAlgorithm.
func HashWithAlgorithm(p Primitives, data []byte, algorithm string) (string, error) {
	if algorithm != "" && algorithm != "blake2b" && algorithm != "blake2b-256" {
		return "", fmt.Errorf("%w: %s", errUnsupportedAlgorithm, algorithm)
	}
	return p.Hash(data)
}

var errUnsupportedAlgorithm = fmt.Errorf("unsupported hash algorithm")
