package auth

import (
	"github.com/alexedwards/argon2id"
)

// PasswordHasher hashes and checks account passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

type Argon2Hasher struct {
	params *argon2id.Params
}

func NewArgon2Hasher(params *argon2id.Params) *Argon2Hasher {
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &Argon2Hasher{params: params}
}

func (h *Argon2Hasher) Hash(plain string) (string, error) {
	return argon2id.CreateHash(plain, h.params)
}

func (h *Argon2Hasher) Verify(plain, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(plain, hash)
}
