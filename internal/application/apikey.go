package application

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidAPIKey is returned when a presented key does not match the configured hash.
	ErrInvalidAPIKey = errors.New("application: invalid api key")
	// ErrInvalidKeyHash is returned when a stored hash is not in PHC argon2id form.
	ErrInvalidKeyHash = errors.New("application: invalid api key hash format")
	// ErrIncompatibleKeyHashVersion is returned for hashes of another argon2 version.
	ErrIncompatibleKeyHashVersion = errors.New("application: incompatible api key hash version")
)

// Argon2idParams tunes API key hashing.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams are used by the hash-key command.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// GenerateAPIKey returns a random URL-safe key of 32 bytes of entropy.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashAPIKey derives a $argon2id$v=..$m=..,t=..,p=..$salt$hash string for key.
func HashAPIKey(key string, params Argon2idParams) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidAPIKey)
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyAPIKey checks key against a hash produced by HashAPIKey in constant time.
func VerifyAPIKey(encoded, key string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidKeyHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}
	if version != argon2.Version {
		return ErrIncompatibleKeyHashVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}

	got := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(want)))
	if subtle.ConstantTimeCompare(want, got) == 1 {
		return nil
	}
	return ErrInvalidAPIKey
}

// APIKeyVerifier checks presented keys against one configured hash. Accepted
// keys are remembered by digest so argon2 runs once per distinct key.
type APIKeyVerifier struct {
	hash     string
	accepted *lru.Cache[[sha256.Size]byte, struct{}]
}

// NewAPIKeyVerifier validates the hash format up front.
func NewAPIKeyVerifier(hash string) (*APIKeyVerifier, error) {
	if parts := strings.Split(hash, "$"); len(parts) != 6 || parts[1] != "argon2id" {
		return nil, ErrInvalidKeyHash
	}
	accepted, err := lru.New[[sha256.Size]byte, struct{}](16)
	if err != nil {
		return nil, err
	}
	return &APIKeyVerifier{hash: hash, accepted: accepted}, nil
}

// VerifyAPIKey implements the HTTP layer's key check.
func (v *APIKeyVerifier) VerifyAPIKey(key string) error {
	if v == nil || key == "" {
		return ErrInvalidAPIKey
	}
	digest := sha256.Sum256([]byte(key))
	if v.accepted.Contains(digest) {
		return nil
	}
	if err := VerifyAPIKey(v.hash, key); err != nil {
		return err
	}
	v.accepted.Add(digest, struct{}{})
	return nil
}
