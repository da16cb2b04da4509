package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashSecret hashes a shared secret using bcrypt. The runner and inbound
// webhook credentials are stored only in this form.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckSecret compares a hashed secret with a plain text one
func CheckSecret(hashedSecret, secret string) bool {
	if hashedSecret == "" || secret == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
	return err == nil
}
