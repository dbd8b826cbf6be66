package settings

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. N=16384 keeps derivation memory-hard (~16 MiB) while
// staying fast enough for a login check on a Pi.
const (
	scryptN       = 16384
	scryptR       = 8
	scryptP       = 1
	scryptKeyLen  = 32
	scryptSaltLen = 16
)

// ErrInvalidHash is returned when a stored password record cannot be parsed.
var ErrInvalidHash = errors.New("settings: invalid password hash")

// HashPassword derives a storable record from a plaintext password.
// Format: scrypt$N$r$p$<salt hex>$<hash hex>, parameters embedded so they
// can be raised later without invalidating existing records.
func HashPassword(password string) (string, error) {
	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	hash, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("failed to derive password hash: %w", err)
	}
	return fmt.Sprintf("scrypt$%d$%d$%d$%s$%s",
		scryptN, scryptR, scryptP,
		hex.EncodeToString(salt), hex.EncodeToString(hash)), nil
}

// VerifyPassword checks a plaintext password against a stored record in
// constant time.
func VerifyPassword(password, record string) (bool, error) {
	parts := strings.Split(record, "$")
	if len(parts) != 6 || parts[0] != "scrypt" {
		return false, ErrInvalidHash
	}
	n, err1 := strconv.Atoi(parts[1])
	r, err2 := strconv.Atoi(parts[2])
	p, err3 := strconv.Atoi(parts[3])
	salt, err4 := hex.DecodeString(parts[4])
	want, err5 := hex.DecodeString(parts[5])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return false, ErrInvalidHash
	}
	got, err := scrypt.Key([]byte(password), salt, n, r, p, len(want))
	if err != nil {
		return false, fmt.Errorf("failed to derive password hash: %w", err)
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
