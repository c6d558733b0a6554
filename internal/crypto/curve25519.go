package crypto

import "golang.org/x/crypto/curve25519"

// curve25519ScalarBaseMult derives the Curve25519 public key for a private
// scalar, the same step nacl/box.GenerateKey performs when minting a fresh
// keypair. Unseal needs it to recover "our own" public key from the
// private key it already holds, since the sealed-box format (see Seal)
// only transmits the sender's ephemeral public key.
func curve25519ScalarBaseMult(priv [32]byte) ([32]byte, error) {
	var pub [32]byte
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], out)
	return pub, nil
}
