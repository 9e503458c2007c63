// Package auth signs founders in with their wallet and issues session tokens.
//
// A founder signs a login message with personal_sign; the server recovers the
// signer, checks it against the claimed address and answers with a JWT whose
// subject is that address.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignature = errors.New("invalid wallet signature")
	ErrSignerMismatch   = errors.New("signature does not match address")
	ErrMessageExpired   = errors.New("login message expired")
)

// MessageTTL bounds how old a signed login message may be.
const MessageTTL = 10 * time.Minute

// LoginMessage is the exact text a wallet signs to log in.
func LoginMessage(address common.Address, issuedAt time.Time) string {
	return fmt.Sprintf("Sign in to the Verdant startup registry.\n\nAddress: %s\nIssued At: %s",
		address.Hex(), issuedAt.UTC().Format(time.RFC3339))
}

// RecoverSigner returns the address that produced a personal_sign signature.
func RecoverSigner(message string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyLogin checks a signed login message issued at issuedAt.
func VerifyLogin(address common.Address, issuedAt time.Time, sig []byte, now time.Time) error {
	age := now.Sub(issuedAt)
	if age > MessageTTL || age < -time.Minute {
		return ErrMessageExpired
	}

	signer, err := RecoverSigner(LoginMessage(address, issuedAt), sig)
	if err != nil {
		return err
	}
	if signer != address {
		return ErrSignerMismatch
	}
	return nil
}
