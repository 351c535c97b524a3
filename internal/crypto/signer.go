// Package crypto provides deterministic order hashing, signing with
// mandatory local verification, and encrypted-key loading for the exchange
// order flow.
package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// priceScale and sizeScale are the fixed-point scales applied to order
// price and size before hashing (8 decimal places, matching the exchange's
// settlement precision).
const (
	priceScale = 1e8
	sizeScale  = 1e8
)

// timeInForceCode maps the wire time-in-force values to the integer codes
// used in the signed message. Unknown values hash as GTC.
var timeInForceCode = map[string]int64{
	"GTC":       0,
	"IOC":       1,
	"FOK":       2,
	"POST_ONLY": 3,
}

// OrderPayload carries the order fields that participate in the signed
// message hash, in their fixed hashing order: market, side, price, size,
// nonce, timeInForce, reduceOnly, vaultID.
type OrderPayload struct {
	Market      string
	Side        string // "BUY" or "SELL"
	Price       float64
	Size        float64
	Nonce       int64 // Unix seconds; supplied by the caller for determinism
	TimeInForce string
	ReduceOnly  bool
	VaultID     int64
}

// Signature holds the two signature components submitted with an order,
// hex-encoded with a 0x prefix.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
}

// Signer hashes and signs order payloads. Every produced signature is
// verified against the account's public key before it is returned; a
// verification failure is an error and the caller must not submit the
// order.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  []byte // uncompressed 65-byte public key
}

// NewSigner creates a Signer from a hex-encoded private key and the
// account's hex-encoded uncompressed public key. It fails when the public
// key does not match the one derived from the private key, so a key-pair
// mismatch is caught at startup rather than on the first order.
func NewSigner(privateKeyHex, publicKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	derived := ethcrypto.FromECDSAPub(&pk.PublicKey)

	expected, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid public key: %w", err)
	}
	if !bytes.Equal(derived, expected) {
		return nil, fmt.Errorf("crypto/signer: public key mismatch: derived %s, configured %s",
			hex.EncodeToString(derived[:8])+"...", hex.EncodeToString(expected[:min(8, len(expected))])+"...")
	}

	return &Signer{privateKey: pk, publicKey: derived}, nil
}

// PublicKeyHex returns the signer's uncompressed public key, 0x-prefixed.
func (s *Signer) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(s.publicKey)
}

// OrderHash computes the deterministic 32-byte message hash for an order.
// Each field is encoded as a 32-byte big-endian word and folded into a
// Keccak-256 hash chain in the fixed field order, so the same payload
// always produces the same digest regardless of how the request was built.
func OrderHash(o OrderPayload) []byte {
	marketWord := marketToWord(o.Market)

	var sideCode int64
	if o.Side == "SELL" {
		sideCode = 1
	}

	var reduceCode int64
	if o.ReduceOnly {
		reduceCode = 1
	}

	h := ethcrypto.Keccak256(marketWord, int64Word(sideCode))
	h = ethcrypto.Keccak256(h, int64Word(int64(o.Price*priceScale)))
	h = ethcrypto.Keccak256(h, int64Word(int64(o.Size*sizeScale)))
	h = ethcrypto.Keccak256(h, int64Word(o.Nonce))
	h = ethcrypto.Keccak256(h, int64Word(timeInForceCode[o.TimeInForce]))
	h = ethcrypto.Keccak256(h, int64Word(reduceCode))
	h = ethcrypto.Keccak256(h, int64Word(o.VaultID))
	return h
}

// SignOrder hashes the payload, signs the digest, and verifies the
// signature locally against the account public key. It never returns an
// unverified signature.
func (s *Signer) SignOrder(o OrderPayload) (Signature, error) {
	digest := OrderHash(o)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// Mandatory pre-submission check: the 64-byte r||s must verify against
	// the account public key or the order is dropped before any network I/O.
	if !ethcrypto.VerifySignature(ethcrypto.CompressPubkey(&s.privateKey.PublicKey), digest, sig[:64]) {
		return Signature{}, fmt.Errorf("crypto/signer: local signature verification failed")
	}

	return Signature{
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
	}, nil
}

// marketToWord packs a market symbol into a 32-byte word, truncating
// symbols longer than 31 bytes so the value stays below the field size.
func marketToWord(market string) []byte {
	b := []byte(market)
	if len(b) > 31 {
		b = b[:31]
	}
	n := new(big.Int).SetBytes(b)
	return int64WordBig(n)
}

// int64Word returns a 32-byte big-endian representation of n.
func int64Word(n int64) []byte {
	return int64WordBig(big.NewInt(n))
}

// int64WordBig returns a 32-byte big-endian representation of n.
func int64WordBig(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}
