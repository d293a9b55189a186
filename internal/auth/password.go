package auth

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword bcrypt-hashes a plaintext credential. A non-positive cost
// falls back to the library default.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// HashRandomCredential produces a hash of a throwaway random secret for
// accounts created without a password, such as customers auto-provisioned
// from inbound messages. The plaintext is discarded, so the account cannot
// log in until a real credential is set.
func HashRandomCredential(cost int) (string, error) {
	return HashPassword(uuid.NewString(), cost)
}

// ComparePassword reports whether plain matches the stored hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
