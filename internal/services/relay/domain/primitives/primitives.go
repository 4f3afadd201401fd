// Package primitives defines the value types shared by every relay runtime
// subsystem: validator identities, session and block counters, parachain ids
// and the additive weight unit used for block resource accounting.
package primitives

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mr-tron/base58"
)

// ValidatorIDLen is the byte length of a validator identity (an ed25519 public key).
const ValidatorIDLen = 32

var (
	// ErrInvalidValidatorID indicates a validator id that does not decode to 32 bytes.
	ErrInvalidValidatorID = errors.New("invalid validator id")
	// ErrInvalidHash indicates a hash that does not decode to 32 bytes.
	ErrInvalidHash = errors.New("invalid hash")
)

// ValidatorID is the opaque identity of a validator. Comparison is by value.
type ValidatorID [ValidatorIDLen]byte

// ValidatorIDFromBytes copies raw key bytes into a ValidatorID.
func ValidatorIDFromBytes(raw []byte) (ValidatorID, error) {
	var id ValidatorID
	if len(raw) != ValidatorIDLen {
		return id, fmt.Errorf("%w: length %d", ErrInvalidValidatorID, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// ParseValidatorID decodes the base58 text form of a validator id.
func ParseValidatorID(text string) (ValidatorID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ValidatorID{}, fmt.Errorf("%w: empty", ErrInvalidValidatorID)
	}
	raw, err := base58.Decode(text)
	if err != nil {
		return ValidatorID{}, fmt.Errorf("%w: %v", ErrInvalidValidatorID, err)
	}
	return ValidatorIDFromBytes(raw)
}

// String returns the base58 text form.
func (v ValidatorID) String() string {
	return base58.Encode(v[:])
}

// MarshalText implements encoding.TextMarshaler.
func (v ValidatorID) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *ValidatorID) UnmarshalText(text []byte) error {
	parsed, err := ParseValidatorID(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// AccountID identifies the staking account that controls a validator key.
type AccountID string

// AccountValidator pairs an account with the validator identity it announced.
type AccountValidator struct {
	Account AccountID
	ID      ValidatorID
}

// ValidatorIDs drops the account component of each pair, keeping order.
func ValidatorIDs(pairs []AccountValidator) []ValidatorID {
	ids := make([]ValidatorID, 0, len(pairs))
	for _, pair := range pairs {
		ids = append(ids, pair.ID)
	}
	return ids
}

// CloneValidators returns an independent copy of a validator sequence.
func CloneValidators(ids []ValidatorID) []ValidatorID {
	if ids == nil {
		return nil
	}
	cloned := make([]ValidatorID, len(ids))
	copy(cloned, ids)
	return cloned
}

// SessionIndex identifies a session. It only ever increases.
type SessionIndex uint32

// SaturatingSub subtracts without wrapping below zero.
func (s SessionIndex) SaturatingSub(n SessionIndex) SessionIndex {
	if n > s {
		return 0
	}
	return s - n
}

// BlockNumber is the height of a relay chain block.
type BlockNumber uint32

// ValidatorIndex is the position of a validator in the active set.
type ValidatorIndex uint32

// ParaID identifies a parachain or parathread.
type ParaID uint32

// Weight is an abstract additive resource cost. Addition saturates at the
// maximum value, which keeps summation associative and commutative.
type Weight uint64

// MaxWeight is the saturation bound of Weight.
const MaxWeight Weight = math.MaxUint64

// Add returns w+other, saturating at MaxWeight.
func (w Weight) Add(other Weight) Weight {
	if other > MaxWeight-w {
		return MaxWeight
	}
	return w + other
}

// Hash is a 32-byte digest.
type Hash [32]byte

// String returns the 0x-prefixed hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether every byte is zero.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash decodes a 0x-prefixed or bare hex string.
func ParseHash(text string) (Hash, error) {
	var h Hash
	text = strings.TrimPrefix(strings.TrimSpace(text), "0x")
	raw, err := hex.DecodeString(text)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("%w: length %d", ErrInvalidHash, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
