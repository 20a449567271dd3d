package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// MaxPasswordLength bounds hashing work per request; argon2 cost does not
	// depend on input length, but unbounded inputs are still rejected.
	MaxPasswordLength = 512

	defaultMemoryKiB   = 64 * 1024
	defaultParallelism = 2
	defaultSaltLength  = 16
	defaultKeyLength   = 32
)

// PasswordHasher hashes and verifies passwords using Argon2id.
// Digests use the PHC string format:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
type PasswordHasher struct {
	memoryKiB   uint32
	timeCost    uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewPasswordHasher creates a hasher with the given time cost (work factor).
// Values below 1 are clamped to 1.
func NewPasswordHasher(timeCost int) *PasswordHasher {
	if timeCost < 1 {
		timeCost = 1
	}
	return &PasswordHasher{
		memoryKiB:   defaultMemoryKiB,
		timeCost:    uint32(timeCost),
		parallelism: defaultParallelism,
		saltLength:  defaultSaltLength,
		keyLength:   defaultKeyLength,
	}
}

// Hash derives a salted digest from password. Each call embeds a fresh random
// salt, so two hashes of the same password differ.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPassword)
	}
	if len(password) > MaxPasswordLength {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrInvalidPassword, MaxPasswordLength)
	}

	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.timeCost, h.memoryKiB, h.parallelism, h.keyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memoryKiB, h.timeCost, h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether password matches the digest. A wrong password returns
// (false, nil); only a digest that cannot be parsed returns ErrMalformedDigest.
// The comparison is constant time.
func (h *PasswordHasher) Verify(password, digest string) (bool, error) {
	memoryKiB, timeCost, parallelism, salt, expected, err := decodeDigest(digest)
	if err != nil {
		return false, err
	}

	// Parameters come from the digest, not the hasher, so digests created
	// with older settings keep verifying after a config change.
	key := argon2.IDKey([]byte(password), salt, timeCost, memoryKiB, parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decodeDigest(digest string) (memoryKiB, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: unexpected structure", ErrMalformedDigest)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: unsupported version", ErrMalformedDigest)
	}

	var par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memoryKiB, &timeCost, &par); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: bad parameters", ErrMalformedDigest)
	}
	if memoryKiB == 0 || timeCost == 0 || par == 0 || par > 255 {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: bad parameters", ErrMalformedDigest)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: bad salt encoding", ErrMalformedDigest)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: bad key encoding", ErrMalformedDigest)
	}
	if len(key) < 16 || len(key) > 128 {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: bad key length", ErrMalformedDigest)
	}

	return memoryKiB, timeCost, uint8(par), salt, key, nil
}
