// Package identity carries the miner's network identity into the loop by
// explicit injection; nothing in the core reads ambient identity state.
// The signature scheme itself lives outside this repository.
package identity

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrEmptyHotkey = errors.New("empty hotkey")

// Wallet is the miner's identity as the core needs it: a stable hotkey
// string that scopes artifacts and run names.
type Wallet interface {
	Hotkey() string
}

type staticWallet struct {
	hotkey string
}

// NewStaticWallet wraps an externally provisioned hotkey.
func NewStaticWallet(hotkey string) (Wallet, error) {
	hotkey = strings.TrimSpace(hotkey)
	if hotkey == "" {
		return nil, ErrEmptyHotkey
	}

	return &staticWallet{hotkey: hotkey}, nil
}

// NewDevWallet mints a throwaway identity for local runs and tests.
func NewDevWallet() Wallet {
	return &staticWallet{hotkey: uuid.NewString()}
}

func (w *staticWallet) Hotkey() string {
	return w.hotkey
}
