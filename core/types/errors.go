package types

import "errors"

// The closed set of business errors the ledger can produce. Sessions map
// these onto structured error responses; anything outside this set is a
// transport or programming error.
var (
	// ErrDuplicateAccount is returned when creating an account whose id is
	// already registered.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrUnknownAccount is returned for any operation that references an
	// account id with no preceding create.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrInsufficientFunds is returned when a withdrawal or transfer exceeds
	// the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrProhibited is returned for requests that are well-formed but not
	// allowed, such as transferring money to the sending account.
	ErrProhibited = errors.New("operation prohibited")

	// ErrBadRequest is returned for malformed input: zero amounts, oversized
	// or empty account ids, and balance overflow.
	ErrBadRequest = errors.New("bad request")
)
