// Package signing provides the NaCl-based QR payload signer used for
// ticket issuance.
package signing

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/sign"

	"github.com/openbooks/backend/internal/domain/purchase"
)

// SeedSize is the number of seed bytes a signing key is derived from
const SeedSize = 32

// NaClSigner signs ticket QR payloads with an Ed25519 key derived from a
// fixed seed. Scanners verify offline with the matching public key.
type NaClSigner struct {
	publicKey  *[32]byte
	privateKey *[64]byte
}

// NewNaClSigner derives a signer from a 32-byte seed. The same seed
// always yields the same key pair, so the seed is the secret to protect.
func NewNaClSigner(seed []byte) (*NaClSigner, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", SeedSize, len(seed))
	}

	publicKey, privateKey, err := sign.GenerateKey(bytes.NewReader(seed))
	if err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}

	return &NaClSigner{publicKey: publicKey, privateKey: privateKey}, nil
}

// NewNaClSignerFromHex derives a signer from a hex-encoded seed, as
// carried in configuration
func NewNaClSignerFromHex(seedHex string) (*NaClSigner, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decoding signing seed: %w", err)
	}
	return NewNaClSigner(seed)
}

// Sign returns the detached signature of the payload, base64url encoded
// for embedding in a QR code URL
func (s *NaClSigner) Sign(payload string) (string, error) {
	signed := sign.Sign(nil, []byte(payload), s.privateKey)
	// sign.Sign prepends the 64-byte signature to the message
	signature := signed[:sign.Overhead]
	return base64.RawURLEncoding.EncodeToString(signature), nil
}

// Verify checks a detached signature produced by Sign
func (s *NaClSigner) Verify(payload, signature string) bool {
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil || len(sig) != sign.Overhead {
		return false
	}

	signed := make([]byte, 0, len(sig)+len(payload))
	signed = append(signed, sig...)
	signed = append(signed, []byte(payload)...)

	_, ok := sign.Open(nil, signed, s.publicKey)
	return ok
}

// PublicKeyHex returns the hex-encoded public key for distribution to
// scanner devices
func (s *NaClSigner) PublicKeyHex() string {
	return hex.EncodeToString(s.publicKey[:])
}

// Ensure NaClSigner implements QRSigner
var _ purchase.QRSigner = (*NaClSigner)(nil)
