package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// testKeyPair generates a fresh key pair and returns (privateHex, publicHex).
func testKeyPair(t *testing.T) (string, string) {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privHex := "0x" + hex.EncodeToString(ethcrypto.FromECDSA(pk))
	pubHex := "0x" + hex.EncodeToString(ethcrypto.FromECDSAPub(&pk.PublicKey))
	return privHex, pubHex
}

func TestNewSigner_PublicKeyMismatch(t *testing.T) {
	privA, _ := testKeyPair(t)
	_, pubB := testKeyPair(t)

	if _, err := NewSigner(privA, pubB); err == nil {
		t.Fatal("expected error for mismatched key pair, got nil")
	}
}

func TestOrderHash_Deterministic(t *testing.T) {
	payload := OrderPayload{
		Market:      "BTC-USD",
		Side:        "BUY",
		Price:       60000,
		Size:        0.01,
		Nonce:       1700000000,
		TimeInForce: "POST_ONLY",
		ReduceOnly:  false,
		VaultID:     42,
	}

	h1 := OrderHash(payload)
	h2 := OrderHash(payload)
	if len(h1) != 32 {
		t.Fatalf("expected 32-byte hash, got %d", len(h1))
	}
	if string(h1) != string(h2) {
		t.Error("identical payloads must hash identically")
	}

	// Any field change must change the digest.
	cases := []struct {
		name   string
		mutate func(p OrderPayload) OrderPayload
	}{
		{"market", func(p OrderPayload) OrderPayload { p.Market = "ETH-USD"; return p }},
		{"side", func(p OrderPayload) OrderPayload { p.Side = "SELL"; return p }},
		{"price", func(p OrderPayload) OrderPayload { p.Price = 60001; return p }},
		{"size", func(p OrderPayload) OrderPayload { p.Size = 0.02; return p }},
		{"nonce", func(p OrderPayload) OrderPayload { p.Nonce++; return p }},
		{"tif", func(p OrderPayload) OrderPayload { p.TimeInForce = "GTC"; return p }},
		{"reduceOnly", func(p OrderPayload) OrderPayload { p.ReduceOnly = true; return p }},
		{"vault", func(p OrderPayload) OrderPayload { p.VaultID = 43; return p }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if string(OrderHash(tc.mutate(payload))) == string(h1) {
				t.Errorf("changing %s did not change the hash", tc.name)
			}
		})
	}
}

func TestSignOrder_VerifiesLocally(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer, err := NewSigner(priv, pub)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	sig, err := signer.SignOrder(OrderPayload{
		Market:      "BTC-USD",
		Side:        "SELL",
		Price:       60060,
		Size:        0.01,
		Nonce:       1700000123,
		TimeInForce: "POST_ONLY",
	})
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}

	if !strings.HasPrefix(sig.R, "0x") || !strings.HasPrefix(sig.S, "0x") {
		t.Errorf("signature components must be 0x-prefixed: %+v", sig)
	}
	if len(sig.R) != 66 || len(sig.S) != 66 {
		t.Errorf("expected 32-byte hex components, got r=%d s=%d chars", len(sig.R), len(sig.S))
	}
}

func TestEncryptDecryptKey_RoundTrip(t *testing.T) {
	priv, _ := testKeyPair(t)
	keyHex := strings.TrimPrefix(priv, "0x")

	blob, err := EncryptKey(keyHex, "hunter22")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "hunter22")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != keyHex {
		t.Errorf("round trip mismatch: got %s want %s", got, keyHex)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("expected error for wrong password")
	}
}
