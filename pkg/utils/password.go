package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength  = 16
	keyLength   = 32
	memoryCost  = 64 * 1024
	parallelism = 2

	// DefaultTimeCost is used when no cost factor is configured.
	DefaultTimeCost = 3
)

var timeCost uint32 = DefaultTimeCost

// SetHashTimeCost overrides the Argon2id time cost. Existing hashes keep
// verifying because the parameters are parsed back out of the stored hash.
func SetHashTimeCost(t int) {
	if t > 0 {
		timeCost = uint32(t)
	}
}

// HashPassword hashes a password using Argon2id
// Format: $argon2id$v=19$m=65536,t=3,p=2$salt$hash
func HashPassword(password string) (string, error) {
	// Generate a random salt
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	// Hash the password with Argon2id
	hash := argon2.IDKey([]byte(password), salt, timeCost, memoryCost, parallelism, keyLength)

	// Encode salt and hash to base64
	saltBase64 := base64.RawStdEncoding.EncodeToString(salt)
	hashBase64 := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memoryCost, timeCost, parallelism, saltBase64, hashBase64), nil
}

// VerifyPassword verifies a password against a hash
func VerifyPassword(password, hashedPassword string) (bool, error) {
	// Parse the hash format
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("invalid hash format")
	}

	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false, errors.New("invalid hash parameters")
	}

	// Decode salt and hash
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, err
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, err
	}

	// Compute hash of the provided password with the stored parameters
	computedHash := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(hash)))

	// Constant-time comparison
	return subtle.ConstantTimeCompare(computedHash, hash) == 1, nil
}
