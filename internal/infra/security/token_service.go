// File: internal/infra/security/token_service.go
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"docbatch/internal/domain/ports/adapter"
)

var _ adapter.TokenService = (*TokenService)(nil)

// TokenBytes is the entropy of a download token before hex encoding.
const TokenBytes = 32

// TokenService mints download tokens: TokenBytes random bytes, hex encoded.
// Only the SHA-256 of a token is ever stored.
type TokenService struct {
	rand io.Reader
}

func NewTokenService() *TokenService {
	return &TokenService{rand: rand.Reader}
}

// Generate returns the raw token for the client and its hash for storage.
func (s *TokenService) Generate() (string, string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", "", fmt.Errorf("rand token: %w", err)
	}
	raw := hex.EncodeToString(b)
	return raw, s.Hash(raw), nil
}

func (s *TokenService) Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
