// Package state holds the projected account balances: the left-fold of the
// operation log into a current view. It enforces the business rules for a
// single operation; ordering and persistence are the caller's concern.
package state

import (
	"fmt"

	"github.com/ledgerd/ledgerd/core/types"
)

// StateDB maps account ids to their current state. It is derived strictly
// from the operation log: replaying the same log into a fresh StateDB
// yields an equal one. Not safe for concurrent use; the ledger facade
// serializes access.
type StateDB struct {
	accounts map[types.AccountID]types.Account
}

// New returns an empty projection.
func New() *StateDB {
	return &StateDB{accounts: make(map[types.AccountID]types.Account)}
}

// Apply folds a single operation into the projection and returns the
// affected account after the mutation. The rules are:
//
//   - Create of an existing id fails with ErrDuplicateAccount.
//   - Deposit/Withdraw of an absent id fails with ErrUnknownAccount.
//   - Withdraw exceeding the balance fails with ErrInsufficientFunds.
//   - Deposit overflowing the balance fails with ErrBadRequest.
//
// On failure the projection is unchanged.
func (s *StateDB) Apply(op types.Operation) (types.Account, error) {
	switch op := op.(type) {
	case types.Create:
		if _, exists := s.accounts[op.ID]; exists {
			return types.Account{}, fmt.Errorf("%w: %s", types.ErrDuplicateAccount, op.ID)
		}
		account := types.Account{ID: op.ID, Balance: 0}
		s.accounts[op.ID] = account
		return account, nil

	case types.Deposit:
		account, exists := s.accounts[op.ID]
		if !exists {
			return types.Account{}, fmt.Errorf("%w: %s", types.ErrUnknownAccount, op.ID)
		}
		amount := types.Money(op.Amount.Uint32())
		if account.Balance > types.MaxMoney-amount {
			return types.Account{}, fmt.Errorf("%w: deposit overflows balance of %s", types.ErrBadRequest, op.ID)
		}
		account.Balance += amount
		s.accounts[op.ID] = account
		return account, nil

	case types.Withdraw:
		account, exists := s.accounts[op.ID]
		if !exists {
			return types.Account{}, fmt.Errorf("%w: %s", types.ErrUnknownAccount, op.ID)
		}
		amount := types.Money(op.Amount.Uint32())
		if account.Balance < amount {
			return types.Account{}, fmt.Errorf("%w: %s has %d, want %d", types.ErrInsufficientFunds, op.ID, account.Balance, amount)
		}
		account.Balance -= amount
		s.accounts[op.ID] = account
		return account, nil

	default:
		panic(fmt.Sprintf("state: unhandled operation %T", op))
	}
}

// ApplyAll folds a sequence of operations in order, returning the affected
// account after each step. It stops at the first failure. Callers that have
// already validated and logged the sequence must treat an error here as a
// broken invariant, not a business outcome.
func (s *StateDB) ApplyAll(ops []types.Operation) ([]types.Account, error) {
	accounts := make([]types.Account, 0, len(ops))
	for _, op := range ops {
		account, err := s.Apply(op)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// ValidateAll checks whether the whole sequence would apply cleanly,
// without mutating the projection. Later operations are checked against the
// hypothetical state left by earlier ones, so a withdraw/deposit transfer
// pair is validated as one unit.
func (s *StateDB) ValidateAll(ops []types.Operation) error {
	scratch := make(map[types.AccountID]types.Money, len(ops))

	balance := func(id types.AccountID) (types.Money, bool) {
		if b, ok := scratch[id]; ok {
			return b, true
		}
		account, ok := s.accounts[id]
		if !ok {
			return 0, false
		}
		return account.Balance, true
	}

	for _, op := range ops {
		switch op := op.(type) {
		case types.Create:
			if _, exists := balance(op.ID); exists {
				return fmt.Errorf("%w: %s", types.ErrDuplicateAccount, op.ID)
			}
			scratch[op.ID] = 0

		case types.Deposit:
			b, exists := balance(op.ID)
			if !exists {
				return fmt.Errorf("%w: %s", types.ErrUnknownAccount, op.ID)
			}
			amount := types.Money(op.Amount.Uint32())
			if b > types.MaxMoney-amount {
				return fmt.Errorf("%w: deposit overflows balance of %s", types.ErrBadRequest, op.ID)
			}
			scratch[op.ID] = b + amount

		case types.Withdraw:
			b, exists := balance(op.ID)
			if !exists {
				return fmt.Errorf("%w: %s", types.ErrUnknownAccount, op.ID)
			}
			amount := types.Money(op.Amount.Uint32())
			if b < amount {
				return fmt.Errorf("%w: %s has %d, want %d", types.ErrInsufficientFunds, op.ID, b, amount)
			}
			scratch[op.ID] = b - amount

		default:
			panic(fmt.Sprintf("state: unhandled operation %T", op))
		}
	}
	return nil
}

// Balance returns the current state of an account.
func (s *StateDB) Balance(id types.AccountID) (types.Account, error) {
	account, exists := s.accounts[id]
	if !exists {
		return types.Account{}, fmt.Errorf("%w: %s", types.ErrUnknownAccount, id)
	}
	return account, nil
}

// Exists reports whether an account has been created.
func (s *StateDB) Exists(id types.AccountID) bool {
	_, ok := s.accounts[id]
	return ok
}

// Len returns the number of accounts in the projection.
func (s *StateDB) Len() int {
	return len(s.accounts)
}
