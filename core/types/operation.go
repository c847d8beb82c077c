package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Operation is one entry of the ledger's operation log. The variant set is
// closed: accounts are created, deposited to and withdrawn from. A transfer
// is not an operation of its own; it is recorded as a withdraw/deposit pair.
//
// The interface is sealed by an unexported method so that the set of
// variants cannot grow outside this package.
type Operation interface {
	// Account returns the id of the account the operation acts on.
	Account() AccountID

	isOperation()
}

// Create registers a new account with a zero balance.
type Create struct {
	ID AccountID
}

// Deposit increases an account balance by a non-zero amount.
type Deposit struct {
	ID     AccountID
	Amount Amount
}

// Withdraw decreases an account balance by a non-zero amount. It only ever
// appears in the log when the balance covered it at that point.
type Withdraw struct {
	ID     AccountID
	Amount Amount
}

func (op Create) Account() AccountID   { return op.ID }
func (op Deposit) Account() AccountID  { return op.ID }
func (op Withdraw) Account() AccountID { return op.ID }

func (Create) isOperation()   {}
func (Deposit) isOperation()  {}
func (Withdraw) isOperation() {}

func (op Create) String() string   { return fmt.Sprintf("Create(%s)", op.ID) }
func (op Deposit) String() string  { return fmt.Sprintf("Deposit(%s, %s)", op.ID, op.Amount) }
func (op Withdraw) String() string { return fmt.Sprintf("Withdraw(%s, %s)", op.ID, op.Amount) }

// opIDBits is the width of the operation id space. Identifiers are assigned
// sequentially starting from one; exhausting 2^128 ids is treated as fatal.
const opIDBits = 128

// OpID is the strictly monotonic, non-zero identifier assigned to a log
// entry at append time. Insertion order and OpID order coincide. The zero
// value is not a valid id; it marks "no operation".
//
// OpID is comparable and usable as a map key.
type OpID uint256.Int

// FirstOpID returns the smallest valid operation id.
func FirstOpID() OpID {
	return OpID(*uint256.NewInt(1))
}

// IsZero reports whether the id is the invalid zero id.
func (id OpID) IsZero() bool {
	n := uint256.Int(id)
	return n.IsZero()
}

// Cmp compares two ids numerically, returning -1, 0 or +1.
func (id OpID) Cmp(other OpID) int {
	a, b := uint256.Int(id), uint256.Int(other)
	return a.Cmp(&b)
}

// Next returns the id following this one. It panics when the id space is
// exhausted: the log treats id overflow as fatal rather than reusing ids.
func (id OpID) Next() OpID {
	n := uint256.Int(id)
	var next uint256.Int
	next.AddUint64(&n, 1)
	if next.IsZero() || next.BitLen() > opIDBits {
		panic("types: operation id space exhausted")
	}
	return OpID(next)
}

func (id OpID) String() string {
	n := uint256.Int(id)
	return n.Dec()
}
