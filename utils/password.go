package utils

import "golang.org/x/crypto/bcrypt"

// HashAdminKey returns the bcrypt hash stored in AdminAPIKeyHash for an admin API key.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckAdminKey compares a presented admin API key with its bcrypt hash.
// An empty hash never matches.
func CheckAdminKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
