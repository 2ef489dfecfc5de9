package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt" // Password hashing
)

// dummyPassword feeds the comparison made for unknown usernames
const dummyPassword = "calorie-tracker-dummy-password"

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkPassword reports whether password matches hash; bcrypt compares in constant time
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// sameUser compares IDs without short-circuiting on the first differing byte
func sameUser(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
