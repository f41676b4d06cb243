package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnknownAPIKey is returned when no configured hash matches.
var ErrUnknownAPIKey = errors.New("unknown api key")

// VerifyAPIKey checks a presented key against the configured bcrypt hashes
// and returns the index of the matching hash.
func VerifyAPIKey(hashes []string, presented string) (int, error) {
	for i, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil {
			return i, nil
		}
	}
	return 0, ErrUnknownAPIKey
}

// HashAPIKey hashes a plaintext key for configuration storage.
func HashAPIKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
