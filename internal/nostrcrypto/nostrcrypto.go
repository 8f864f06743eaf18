// Package nostrcrypto implements the encrypted envelope used for Nostr
// Wallet Connect (NWC) payment commands that the gateway exchanges with
// the wallet service over the wallet's relay: a
// NaCl box (curve25519-xsalsa20-poly1305) keyed by the gateway's and the
// wallet service's static key pairs, providing authenticated encryption
// above a transport that offers none.
package nostrcrypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeyPair is a curve25519 key pair usable with Seal/Open.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair returns a fresh KeyPair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("nostrcrypto: generate key pair: %w", err)
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// DeriveKeyPair computes the KeyPair for a connection secret handed out by
// a wallet service (the "secret" component of an NWC connection string):
// the secret is used directly as the box private scalar, with the public
// key derived the same way box.GenerateKey derives one internally.
func DeriveKeyPair(secret [32]byte) (KeyPair, error) {
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("nostrcrypto: derive public key: %w", err)
	}
	kp := KeyPair{Private: secret}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Seal encrypts plaintext for peerPublic, authenticated with ours.Private.
// The returned envelope is nonce||ciphertext.
func Seal(plaintext []byte, peerPublic [32]byte, ours KeyPair) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("nostrcrypto: generate nonce: %w", err)
	}
	return box.Seal(nonce[:], plaintext, &nonce, &peerPublic, &ours.Private), nil
}

// Open decrypts an envelope produced by Seal.
func Open(envelope []byte, peerPublic [32]byte, ours KeyPair) ([]byte, error) {
	if len(envelope) < 24 {
		return nil, fmt.Errorf("nostrcrypto: envelope too short")
	}
	var nonce [24]byte
	copy(nonce[:], envelope[:24])
	out, ok := box.Open(nil, envelope[24:], &nonce, &peerPublic, &ours.Private)
	if !ok {
		return nil, fmt.Errorf("nostrcrypto: envelope authentication failed")
	}
	return out, nil
}
