// Package token produces the random identifiers used for invitation tokens
// and email verification codes. Uniqueness relies on entropy width, not on
// checking against existing tokens.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// inviteTokenBytes yields 48 lowercase hex characters.
const inviteTokenBytes = 24

// NewInviteToken returns a 48-character lowercase hex token drawn from the
// crypto random source. The token doubles as the invitation record key.
func NewInviteToken() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewVerificationCode returns a 6-digit decimal code drawn uniformly from
// [100000, 999999].
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
