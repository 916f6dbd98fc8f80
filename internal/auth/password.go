package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

// HashPassword bcrypt-hashes a password of at least MinPasswordLength bytes.
// bcrypt ignores anything past 72 bytes, so longer inputs are refused.
func HashPassword(plain string) (string, error) {
	if len(plain) < MinPasswordLength || len(plain) > 72 {
		return "", fmt.Errorf("password must be %d to 72 characters", MinPasswordLength)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(b), err
}

// VerifyPassword returns nil when plain matches hash.
func VerifyPassword(plain, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
