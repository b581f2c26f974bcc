package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/tendant/simple-social-auth/pkg/domain"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// Argon2id parameters for new hashes.
const (
	argon2Time    uint32 = 1
	argon2Memory  uint32 = 64 * 1024
	argon2Threads uint8  = 4
	argon2KeyLen  uint32 = 32
	saltLen              = 16
)

// Hash algorithms recognised by CheckPasswordHash.
const (
	AlgorithmArgon2id     = "argon2id"
	AlgorithmPBKDF2SHA256 = "pbkdf2_sha256"
	AlgorithmBcrypt       = "bcrypt"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HashPassword hashes a password using Argon2id.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

// MakeUnusablePassword returns a hash value that never verifies.
func MakeUnusablePassword() string {
	suffix, err := randomString(40, alphanumeric)
	if err != nil {
		return domain.UnusablePasswordPrefix
	}
	return domain.UnusablePasswordPrefix + suffix
}

// IsPasswordUsable reports whether encoded can ever verify a password.
func IsPasswordUsable(encoded string) bool {
	return encoded != "" && !strings.HasPrefix(encoded, domain.UnusablePasswordPrefix)
}

// HashAlgorithm names the algorithm of an encoded hash, or "" if unknown.
func HashAlgorithm(encoded string) string {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return AlgorithmArgon2id
	case strings.HasPrefix(encoded, "pbkdf2_sha256$"):
		return AlgorithmPBKDF2SHA256
	case strings.HasPrefix(encoded, "bcrypt$"), strings.HasPrefix(encoded, "$2a$"),
		strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return AlgorithmBcrypt
	default:
		return ""
	}
}

// VerifyPassword verifies a password against any supported hash.
func VerifyPassword(password, encoded string) bool {
	ok, _ := CheckPasswordHash(password, encoded)
	return ok
}

// CheckPasswordHash verifies password against encoded. needsUpgrade is true
// when the hash matched but was produced by an older algorithm or with
// weaker Argon2id parameters than HashPassword uses today.
func CheckPasswordHash(password, encoded string) (ok bool, needsUpgrade bool) {
	if !IsPasswordUsable(encoded) {
		return false, false
	}

	switch HashAlgorithm(encoded) {
	case AlgorithmArgon2id:
		hash, salt, t, m, p, err := decodeArgon2Hash(encoded)
		if err != nil {
			return false, false
		}
		computed := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(hash)))
		if !constantTimeCompare(hash, computed) {
			return false, false
		}
		return true, t != argon2Time || m != argon2Memory || p != argon2Threads || uint32(len(hash)) != argon2KeyLen
	case AlgorithmPBKDF2SHA256:
		return verifyPBKDF2(password, encoded), true
	case AlgorithmBcrypt:
		raw := strings.TrimPrefix(encoded, "bcrypt$")
		return bcrypt.CompareHashAndPassword([]byte(raw), []byte(password)) == nil, true
	default:
		return false, false
	}
}

// verifyPBKDF2 checks the pbkdf2_sha256$<iterations>$<salt>$<b64 hash> format.
func verifyPBKDF2(password, encoded string) bool {
	parts := strings.SplitN(encoded, "$", 4)
	if len(parts) != 4 {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(expected) == 0 {
		return false
	}
	computed := pbkdf2.Key([]byte(password), []byte(parts[2]), iterations, len(expected), sha256.New)
	return constantTimeCompare(expected, computed)
}

func encodeArgon2Hash(hash, salt []byte, t, m uint32, p uint8) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, m, t, p,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

func decodeArgon2Hash(encoded string) (hash, salt []byte, t, m uint32, p uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, 0, 0, 0, fmt.Errorf("invalid argon2 hash format")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if len(hash) == 0 || len(salt) == 0 || t == 0 || m == 0 || p == 0 {
		return nil, nil, 0, 0, 0, fmt.Errorf("invalid argon2 parameters")
	}
	return hash, salt, t, m, p, nil
}

func constantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// randomString draws n characters uniformly from alphabet.
func randomString(n int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
