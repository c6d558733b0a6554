package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// realPrimitives implements Primitives with Ed25519 signatures, an
// authenticated symmetric box with 24-byte nonces, BLAKE2b-256 hashing, an
// anonymous sealed-box construction over nacl/box, and Argon2id KDF — the
// concrete algorithms named in §4.2 "Real mode".
type realPrimitives struct{}

func (realPrimitives) Sign(data, priv []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, wrapf("crypto.Sign", "private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), data), nil
}

func (realPrimitives) Verify(data, sig, pub []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig)
}

func (realPrimitives) Encrypt(data, key []byte) (EncryptResult, error) {
	var keyArr [32]byte
	derived, err := derive32(key)
	if err != nil {
		return EncryptResult{}, err
	}
	copy(keyArr[:], derived)

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return EncryptResult{}, wrapf("crypto.Encrypt", "generating nonce: %v", err)
	}

	sealed := secretbox.Seal(nil, data, &nonce, &keyArr)
	return EncryptResult{Ciphertext: sealed, Nonce: nonce[:], Algorithm: "nacl_secretbox"}, nil
}

func (realPrimitives) Decrypt(ciphertext, nonce, key []byte) ([]byte, bool) {
	if len(nonce) != 24 {
		return nil, false
	}
	derived, err := derive32(key)
	if err != nil {
		return nil, false
	}
	var keyArr [32]byte
	copy(keyArr[:], derived)
	var nonceArr [24]byte
	copy(nonceArr[:], nonce)

	plain, ok := secretbox.Open(nil, ciphertext, &nonceArr, &keyArr)
	if !ok {
		return nil, false
	}
	return plain, true
}

func (realPrimitives) Hash(data []byte) (string, error) {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal implements an anonymous sealed box in the spirit of libsodium's
// crypto_box_seal: an ephemeral keypair is generated per call, the nonce is
// derived deterministically from the ephemeral and recipient public keys
// (so it never needs to be transmitted separately), and the ephemeral
// public key is prefixed to the ciphertext so Unseal can recover it.
func (realPrimitives) Seal(data, recipientPub []byte) ([]byte, error) {
	if len(recipientPub) != boxKeySize {
		return nil, wrapf("crypto.Seal", "recipient public key must be %d bytes, got %d", boxKeySize, len(recipientPub))
	}
	var recipientPubArr [32]byte
	copy(recipientPubArr[:], recipientPub)

	ephemPub, ephemPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, wrapf("crypto.Seal", "generating ephemeral keypair: %v", err)
	}

	nonce := sealNonce(ephemPub[:], recipientPub)
	sealed := box.Seal(nil, data, &nonce, &recipientPubArr, ephemPriv)

	out := make([]byte, 0, len(ephemPub)+len(sealed))
	out = append(out, ephemPub[:]...)
	out = append(out, sealed...)
	return out, nil
}

func (realPrimitives) Unseal(sealed, priv []byte) ([]byte, bool) {
	if len(sealed) < 32 || len(priv) != boxKeySize {
		return nil, false
	}
	var privArr [32]byte
	copy(privArr[:], priv)

	var ephemPub [32]byte
	copy(ephemPub[:], sealed[:32])

	pubArr, err := boxPublicFromPrivate(privArr)
	if err != nil {
		return nil, false
	}

	nonce := sealNonce(ephemPub[:], pubArr[:])
	plain, ok := box.Open(nil, sealed[32:], &nonce, &ephemPub, &privArr)
	if !ok {
		return nil, false
	}
	return plain, true
}

func (realPrimitives) KDF(password, salt []byte) (KDFResult, error) {
	if len(salt) == 0 {
		generated := make([]byte, 16)
		if _, err := rand.Read(generated); err != nil {
			return KDFResult{}, wrapf("crypto.KDF", "generating salt: %v", err)
		}
		salt = generated
	}
	const (
		timeCost    = 1
		memoryCost  = 64 * 1024 // KiB, "moderate" per argon2id guidance
		parallelism = 4
		keyLen      = 32
	)
	derived := argon2.IDKey(password, salt, timeCost, memoryCost, parallelism, keyLen)
	return KDFResult{DerivedKey: derived, Salt: salt, Algorithm: "argon2id"}, nil
}

func (realPrimitives) GenerateSignKeypair() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, wrapf("crypto.GenerateSignKeypair", "%v", err)
	}
	return pub, priv, nil
}

func (realPrimitives) GenerateBoxKeypair() ([]byte, []byte, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, wrapf("crypto.GenerateBoxKeypair", "%v", err)
	}
	return pub[:], priv[:], nil
}

// derive32 returns key as-is if it is already 32 bytes, or a BLAKE2b-256
// digest of it otherwise — mirroring original_source/core/crypto.py's
// encrypt()/decrypt(), which re-derives non-32-byte keys the same way.
func derive32(key []byte) ([]byte, error) {
	if len(key) == 32 {
		return key, nil
	}
	sum := blake2b.Sum256(key)
	return sum[:], nil
}

func sealNonce(ephemPub, recipientPub []byte) [24]byte {
	h, _ := blake2b.New(24, nil)
	h.Write(ephemPub)
	h.Write(recipientPub)
	var nonce [24]byte
	copy(nonce[:], h.Sum(nil))
	return nonce
}

func boxPublicFromPrivate(priv [32]byte) ([32]byte, error) {
	// golang.org/x/crypto/nacl/box keys are Curve25519 scalars; the public
	// key is derived via scalar multiplication with the base point, the
	// same operation box.GenerateKey performs internally.
	pub, err := curve25519ScalarBaseMult(priv)
	if err != nil {
		return [32]byte{}, fmt.Errorf("deriving public key: %w", err)
	}
	return pub, nil
}
