package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

type hasher struct {
	cost int

	once  sync.Once
	dummy []byte
}

func newHasher(cost int) *hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &hasher{cost: cost}
}

func (h *hasher) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(b), err
}

func (h *hasher) matches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// burn spends one comparison against a fixed hash so unknown emails take as
// long as wrong passwords.
func (h *hasher) burn(password string) {
	h.once.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("taskflow-dummy-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
