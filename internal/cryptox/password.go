// Package cryptox implements password hashing for stored credentials.
//
// Every digest is self-describing: it carries the algorithm, its parameters
// and the salt, so parameters or algorithms can change without invalidating
// digests written earlier. Two formats are understood:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>   current, produced by Hash
//	$2a$10$<bcrypt>                                legacy, verify only
//
// In both cases the password is first combined with a server-side pepper
// using HMAC-SHA256, so a leaked database alone is not enough to mount an
// offline attack.
package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/usersvc/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyPepper         = errors.New("password pepper is not configured")
	ErrMalformedDigest     = errors.New("malformed password digest")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

const argon2Prefix = "$argon2id$"

// Upper bounds for argon2 costs, both for configuration and for digests read
// back from storage. Memory is in KiB.
const (
	maxArgon2Memory = 1 << 20
	maxArgon2Time   = 16
)

// Argon2Params are the argon2id cost parameters. Memory is in KiB.
type Argon2Params struct {
	Memory     uint32
	Time       uint32
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

// DefaultArgon2Params returns the parameters used for new digests unless
// configured otherwise.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:     64 * 1024,
		Time:       1,
		Threads:    4,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// Hasher hashes and verifies passwords with a fixed pepper.
type Hasher struct {
	pepper []byte
	params Argon2Params
	decoy  string
}

// NewHasher returns a Hasher for pepper. An empty pepper is a configuration
// error and is rejected here rather than on every call.
func NewHasher(pepper []byte, params Argon2Params) (*Hasher, error) {
	if len(pepper) == 0 {
		return nil, ErrEmptyPepper
	}
	if params.SaltLength == 0 || params.KeyLength == 0 || params.Threads == 0 || params.Time == 0 ||
		params.Memory > maxArgon2Memory || params.Time > maxArgon2Time {
		return nil, fmt.Errorf("invalid argon2 parameters: %+v", params)
	}

	h := &Hasher{pepper: append([]byte(nil), pepper...), params: params}

	// Decoy digest of a random password; verifying against it costs the same
	// as verifying a real one.
	secret, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	decoy, err := h.Hash(secret)
	if err != nil {
		return nil, err
	}
	h.decoy = decoy

	return h, nil
}

func (h *Hasher) peppered(plain string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(plain))
	return mac.Sum(nil)
}

// Hash returns an argon2id digest of plain in PHC string format.
func (h *Hasher) Hash(plain string) (string, error) {
	if h == nil || len(h.pepper) == 0 {
		return "", ErrEmptyPepper
	}

	salt := common.GenerateRandByteArray(int(h.params.SaltLength))
	secret := h.peppered(plain)
	defer common.WipeByteArray(secret)

	key := argon2.IDKey(secret, salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches digest. A mismatch is (false, nil);
// an error is returned only when digest cannot be parsed.
func (h *Hasher) Verify(digest, plain string) (bool, error) {
	if h == nil || len(h.pepper) == 0 {
		return false, ErrEmptyPepper
	}

	switch {
	case strings.HasPrefix(digest, argon2Prefix):
		return h.verifyArgon2(digest, plain)
	case isBcrypt(digest):
		return h.verifyBcrypt(digest, plain)
	default:
		return false, ErrMalformedDigest
	}
}

// NeedsRehash reports whether digest should be replaced by a fresh Hash:
// legacy bcrypt digests and argon2 digests with outdated parameters.
func (h *Hasher) NeedsRehash(digest string) bool {
	if !strings.HasPrefix(digest, argon2Prefix) {
		return true
	}
	p, _, key, err := decodeArgon2(digest)
	if err != nil {
		return true
	}
	return p.Memory != h.params.Memory ||
		p.Time != h.params.Time ||
		p.Threads != h.params.Threads ||
		uint32(len(key)) != h.params.KeyLength
}

// DecoyDigest returns a valid digest that no caller knows the password for.
func (h *Hasher) DecoyDigest() string {
	return h.decoy
}

func (h *Hasher) verifyArgon2(digest, plain string) (bool, error) {
	p, salt, key, err := decodeArgon2(digest)
	if err != nil {
		return false, err
	}

	secret := h.peppered(plain)
	defer common.WipeByteArray(secret)

	candidate := argon2.IDKey(secret, salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func (h *Hasher) verifyBcrypt(digest, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), h.bcryptInput(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
}

// bcryptInput hex-encodes the peppered MAC so it stays under bcrypt's
// 72-byte input limit.
func (h *Hasher) bcryptInput(plain string) []byte {
	return []byte(hex.EncodeToString(h.peppered(plain)))
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func decodeArgon2(digest string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return p, nil, nil, ErrMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrMalformedDigest
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatibleVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, ErrMalformedDigest
	}
	if p.Time == 0 || p.Threads == 0 || p.Time > maxArgon2Time || p.Memory > maxArgon2Memory {
		return p, nil, nil, ErrMalformedDigest
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, ErrMalformedDigest
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrMalformedDigest
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
