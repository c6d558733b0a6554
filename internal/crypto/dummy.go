package crypto

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Dummy-mode sentinel prefixes, fixed verbatim so tests can byte-match
// them. Sign/Encrypt formats are spec'd in §4.2 ("A dummy
// signature is 'dummy_sig_' + first16(blake2b(data))"; "a dummy encryption
// prepends 'dummy_encrypted_'"); Seal/KDF formats are not pinned by the
// spec text and are carried over unchanged from
// original_source/core/crypto.py's get_crypto_mode()=="dummy" branches.
const (
	dummySigPrefix       = "dummy_sig_"
	dummyEncryptedPrefix = "dummy_encrypted_"
	dummySealedPrefix    = "dummy_sealed_"
	dummySealedSeparator = "_for_"
	dummyKDFAlgorithm    = "dummy_kdf"
	dummySalt            = "dummy_salt"
)

// dummyPrimitives implements Primitives with deterministic, structurally
// recognizable string outputs (§4.2 "Dummy mode") so tests can assert on
// exact bytes without managing real keys.
type dummyPrimitives struct{}

func (dummyPrimitives) Sign(data, _ []byte) ([]byte, error) {
	sum := blake2b.Sum256(data)
	return []byte(dummySigPrefix + hex.EncodeToString(sum[:])[:16]), nil
}

func (dummyPrimitives) Verify(_, sig, _ []byte) bool {
	return strings.HasPrefix(string(sig), dummySigPrefix)
}

func (dummyPrimitives) Encrypt(data, _ []byte) (EncryptResult, error) {
	return EncryptResult{
		Ciphertext: []byte(dummyEncryptedPrefix + string(data)),
		Nonce:      []byte("dummy_nonce"),
		Algorithm:  "dummy",
	}, nil
}

func (dummyPrimitives) Decrypt(ciphertext, _, _ []byte) ([]byte, bool) {
	s := string(ciphertext)
	if !strings.HasPrefix(s, dummyEncryptedPrefix) {
		return nil, false
	}
	return []byte(strings.TrimPrefix(s, dummyEncryptedPrefix)), true
}

func (dummyPrimitives) Hash(data []byte) (string, error) {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (dummyPrimitives) Seal(data, recipientPub []byte) ([]byte, error) {
	prefixLen := len(recipientPub)
	if prefixLen > 8 {
		prefixLen = 8
	}
	return []byte(dummySealedPrefix + string(data) + dummySealedSeparator + string(recipientPub[:prefixLen])), nil
}

func (dummyPrimitives) Unseal(sealed, _ []byte) ([]byte, bool) {
	s := string(sealed)
	if !strings.HasPrefix(s, dummySealedPrefix) {
		return nil, false
	}
	rest := strings.TrimPrefix(s, dummySealedPrefix)
	idx := strings.LastIndex(rest, dummySealedSeparator)
	if idx < 0 {
		return nil, false
	}
	return []byte(rest[:idx]), true
}

func (dummyPrimitives) KDF(password, salt []byte) (KDFResult, error) {
	if len(salt) == 0 {
		salt = []byte(dummySalt)
	}
	sum := blake2b.Sum256(append(append([]byte{}, password...), salt...))
	return KDFResult{DerivedKey: sum[:], Salt: salt, Algorithm: dummyKDFAlgorithm}, nil
}

func (dummyPrimitives) GenerateSignKeypair() ([]byte, []byte, error) {
	return []byte("dummy_pubkey"), []byte("dummy_privkey"), nil
}

func (dummyPrimitives) GenerateBoxKeypair() ([]byte, []byte, error) {
	return []byte("dummy_boxpub"), []byte("dummy_boxpriv"), nil
}
