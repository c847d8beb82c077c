// Package types holds the value types shared by the ledger core and the
// wire protocol: account identifiers, money, non-zero amounts, operations
// and operation identifiers.
package types

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// MaxAccountIDLen is the maximum length of an account identifier in bytes.
// The wire format reserves a single length byte per value, and identifiers
// are meant to be short human-readable handles, not payloads.
const MaxAccountIDLen = 16

// AccountID identifies an account. It is an opaque UTF-8 string of at most
// MaxAccountIDLen bytes and is used as a map key throughout the core.
type AccountID string

// Validate reports whether the identifier is usable: non-empty, within the
// length bound and valid UTF-8.
func (id AccountID) Validate() error {
	switch {
	case len(id) == 0:
		return fmt.Errorf("%w: empty account id", ErrBadRequest)
	case len(id) > MaxAccountIDLen:
		return fmt.Errorf("%w: account id %q exceeds %d bytes", ErrBadRequest, string(id), MaxAccountIDLen)
	case !utf8.ValidString(string(id)):
		return fmt.Errorf("%w: account id is not valid UTF-8", ErrBadRequest)
	}
	return nil
}

// Money is a non-negative account balance.
type Money uint32

// MaxMoney is the largest representable balance. Deposits that would push a
// balance past this bound are rejected, never wrapped.
const MaxMoney = Money(math.MaxUint32)

// Amount is a strictly positive quantity of money, used for every deposit,
// withdrawal and transfer. The zero value is not a valid Amount; construct
// one through NewAmount so that zero stays unrepresentable.
type Amount struct {
	value uint32
}

// NewAmount converts a raw value into an Amount, rejecting zero.
func NewAmount(v uint32) (Amount, error) {
	if v == 0 {
		return Amount{}, fmt.Errorf("%w: zero amount", ErrBadRequest)
	}
	return Amount{value: v}, nil
}

// MustAmount is NewAmount for statically known non-zero values. It panics on
// zero and is intended for tests and command-line tooling.
func MustAmount(v uint32) Amount {
	a, err := NewAmount(v)
	if err != nil {
		panic(err)
	}
	return a
}

// Uint32 returns the numeric value of the amount. It is never zero for an
// Amount obtained through NewAmount.
func (a Amount) Uint32() uint32 {
	return a.value
}

func (a Amount) String() string {
	return fmt.Sprintf("%d", a.value)
}

// Account is the current view of a single account: its identifier and
// balance. It is a plain value; copies are independent.
type Account struct {
	ID      AccountID
	Balance Money
}

func (a Account) String() string {
	return fmt.Sprintf("Account[%s balance=%d]", a.ID, a.Balance)
}
