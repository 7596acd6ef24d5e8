package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used by HashPassword.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonSaltLength  = 16
	argonKeyLength   = 32
)

// CredentialVerifier checks the operator password. It is the only thing the admin plane
// knows about how the credential is stored.
type CredentialVerifier interface {
	Verify(password string) bool
}

// PasswordVerifier checks against an argon2id encoded hash when one is configured and
// falls back to a plain password otherwise. Both paths compare in constant time.
type PasswordVerifier struct {
	plain []byte
	hash  *argonHash
}

type argonHash struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewPasswordVerifier builds a verifier. encodedHash wins over plain when both are set.
func NewPasswordVerifier(plain, encodedHash string) (*PasswordVerifier, error) {
	if encodedHash != "" {
		h, err := parseArgonHash(encodedHash)
		if err != nil {
			return nil, err
		}
		return &PasswordVerifier{hash: h}, nil
	}
	if plain == "" {
		return nil, errors.New("admin credential is not configured")
	}
	return &PasswordVerifier{plain: []byte(plain)}, nil
}

func (v *PasswordVerifier) Verify(password string) bool {
	if v.hash != nil {
		h := v.hash
		candidate := argon2.IDKey([]byte(password), h.salt, h.iterations, h.memory, h.parallelism, uint32(len(h.key)))
		return subtle.ConstantTimeCompare(candidate, h.key) == 1
	}
	return subtle.ConstantTimeCompare([]byte(password), v.plain) == 1
}

// HashPassword returns the "$argon2id$v=..$m=..,t=..,p=..$salt$key" form accepted by
// ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func parseArgonHash(encoded string) (*argonHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, errors.New("invalid argon2id hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("invalid argon2id version: %w", err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2id version %d", version)
	}

	h := &argonHash{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.iterations, &h.parallelism); err != nil {
		return nil, fmt.Errorf("invalid argon2id parameters: %w", err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("invalid argon2id salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("invalid argon2id key: %w", err)
	}
	if len(h.key) == 0 {
		return nil, errors.New("invalid argon2id key: empty")
	}
	return h, nil
}
