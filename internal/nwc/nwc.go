// Package nwc implements the gateway side of a Nostr Wallet Connect
// relationship: parsing the nostr+walletconnect:// connection string a
// wallet service hands out, and sealing/opening the NaCl-box payment
// envelope that carries pay_invoice commands and their results between
// the gateway and that wallet service.
package nwc

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/n5htr/hamstr/internal/nostrcrypto"
)

// Conn is a parsed Nostr Wallet Connect credential: the wallet's public
// key, the relay it listens on, and the key pair derived from the
// connection secret that authenticates this gateway to it.
type Conn struct {
	WalletPub [32]byte
	RelayURL  string
	KeyPair   nostrcrypto.KeyPair
}

// Parse decodes a connection string of the form
// "nostr+walletconnect://<wallet-pubkey-hex>?relay=<url>&secret=<hex>".
func Parse(connString string) (Conn, error) {
	u, err := url.Parse(connString)
	if err != nil {
		return Conn{}, fmt.Errorf("nwc: parse connection string: %w", err)
	}
	if u.Scheme != "nostr+walletconnect" {
		return Conn{}, fmt.Errorf("nwc: unsupported scheme %q", u.Scheme)
	}
	walletPub, err := decodeKey(u.Host)
	if err != nil {
		return Conn{}, fmt.Errorf("nwc: wallet pubkey: %w", err)
	}
	secret, err := decodeKey(u.Query().Get("secret"))
	if err != nil {
		return Conn{}, fmt.Errorf("nwc: secret: %w", err)
	}
	kp, err := nostrcrypto.DeriveKeyPair(secret)
	if err != nil {
		return Conn{}, err
	}
	return Conn{WalletPub: walletPub, RelayURL: u.Query().Get("relay"), KeyPair: kp}, nil
}

func decodeKey(h string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(h)
	if err != nil {
		return out, fmt.Errorf("not hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// SealPayInvoice encrypts a pay_invoice command for the wallet.
func (c Conn) SealPayInvoice(invoice string) ([]byte, error) {
	cmd := fmt.Sprintf(`{"method":"pay_invoice","params":{"invoice":%q}}`, invoice)
	return nostrcrypto.Seal([]byte(cmd), c.WalletPub, c.KeyPair)
}

// Open decrypts an envelope the wallet sealed for this connection (a
// command response, typically containing a preimage or an error).
func (c Conn) Open(envelope []byte) ([]byte, error) {
	return nostrcrypto.Open(envelope, c.WalletPub, c.KeyPair)
}

// Submitter relays a sealed request envelope to the wallet's relay and
// returns its sealed response envelope. No implementation lives in this
// repo: the relay WebSocket client itself is out of scope (spec.md's
// external-collaborators list), so callers that wire a Submitter must
// supply their own against whatever relay client they adopt.
type Submitter interface {
	Submit(ctx context.Context, relayURL string, envelope []byte) ([]byte, error)
}
