package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ResetTokenTTL is how long a password-reset link stays usable.
const ResetTokenTTL = time.Hour

// ResetToken is a freshly minted password-reset credential. Raw goes into
// the emailed link and is never stored; Hash is what the account keeps.
type ResetToken struct {
	Raw     string
	Hash    string
	Expires time.Time
}

// NewResetToken draws 32 random bytes and returns them hex-encoded along
// with their SHA-256 digest.
func NewResetToken(now time.Time) (ResetToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ResetToken{}, fmt.Errorf("auth: generating reset token: %w", err)
	}
	raw := hex.EncodeToString(buf)
	return ResetToken{
		Raw:     raw,
		Hash:    HashResetToken(raw),
		Expires: now.Add(ResetTokenTTL),
	}, nil
}

// HashResetToken returns the hex SHA-256 of a raw token. A fast hash is fine
// here: the input is 256 bits of randomness, not a human password.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
