// Package token provides in-process implementations of generic.Token.
package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/vesting-engine/generic"
)

// =============================================================================
// MEMORY TOKEN - ERC20-style ledger held in process
// =============================================================================

type allowanceKey struct {
	owner   generic.Address
	spender generic.Address
}

// Memory is a fungible token ledger with balances, allowances, and burn.
// All operations are atomic per call.
type Memory struct {
	mu         sync.Mutex
	balances   map[generic.Address]generic.Amount
	allowances map[allowanceKey]generic.Amount
	supply     generic.Amount
}

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[generic.Address]generic.Amount),
		allowances: make(map[allowanceKey]generic.Amount),
		supply:     generic.ZeroAmount(),
	}
}

func (m *Memory) balanceLocked(holder generic.Address) generic.Amount {
	if b, ok := m.balances[holder]; ok {
		return b
	}
	return generic.ZeroAmount()
}

func (m *Memory) allowanceLocked(owner, spender generic.Address) generic.Amount {
	if a, ok := m.allowances[allowanceKey{owner, spender}]; ok {
		return a
	}
	return generic.ZeroAmount()
}

func checkAmount(amount generic.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %v", generic.ErrInvalidAmount, amount)
	}
	return nil
}

// debitLocked removes amount from holder, failing on shortfall.
func (m *Memory) debitLocked(holder generic.Address, amount generic.Amount) error {
	bal := m.balanceLocked(holder)
	if bal.LessThan(amount) {
		return &generic.FundsError{Kind: generic.ErrInsufficientBalance, Holder: holder, Available: bal, Requested: amount}
	}
	m.balances[holder] = bal.Sub(amount)
	return nil
}

// spendLocked consumes spender's allowance over owner.
func (m *Memory) spendLocked(owner, spender generic.Address, amount generic.Amount) error {
	allowed := m.allowanceLocked(owner, spender)
	if allowed.LessThan(amount) {
		return &generic.FundsError{Kind: generic.ErrAllowanceExceeded, Holder: owner, Spender: spender, Available: allowed, Requested: amount}
	}
	m.allowances[allowanceKey{owner, spender}] = allowed.Sub(amount)
	return nil
}

func (m *Memory) BalanceOf(_ context.Context, holder generic.Address) (generic.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(holder), nil
}

func (m *Memory) TotalSupply(_ context.Context) (generic.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supply, nil
}

func (m *Memory) Mint(_ context.Context, to generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[to] = m.balanceLocked(to).Add(amount)
	m.supply = m.supply.Add(amount)
	return nil
}

func (m *Memory) Transfer(_ context.Context, from, to generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.debitLocked(from, amount); err != nil {
		return err
	}
	m.balances[to] = m.balanceLocked(to).Add(amount)
	return nil
}

func (m *Memory) Approve(_ context.Context, owner, spender generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{owner, spender}] = amount
	return nil
}

func (m *Memory) Allowance(_ context.Context, owner, spender generic.Address) (generic.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowanceLocked(owner, spender), nil
}

// TransferFrom checks allowance before balance, like ERC20.
func (m *Memory) TransferFrom(_ context.Context, spender, from, to generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if allowed := m.allowanceLocked(from, spender); allowed.LessThan(amount) {
		return &generic.FundsError{Kind: generic.ErrAllowanceExceeded, Holder: from, Spender: spender, Available: allowed, Requested: amount}
	}
	if err := m.debitLocked(from, amount); err != nil {
		return err
	}
	if err := m.spendLocked(from, spender, amount); err != nil {
		return err
	}
	m.balances[to] = m.balanceLocked(to).Add(amount)
	return nil
}

func (m *Memory) Burn(_ context.Context, holder generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.debitLocked(holder, amount); err != nil {
		return err
	}
	m.supply = m.supply.Sub(amount)
	return nil
}

func (m *Memory) BurnFrom(_ context.Context, spender, holder generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if allowed := m.allowanceLocked(holder, spender); allowed.LessThan(amount) {
		return &generic.FundsError{Kind: generic.ErrAllowanceExceeded, Holder: holder, Spender: spender, Available: allowed, Requested: amount}
	}
	if err := m.debitLocked(holder, amount); err != nil {
		return err
	}
	if err := m.spendLocked(holder, spender, amount); err != nil {
		return err
	}
	m.supply = m.supply.Sub(amount)
	return nil
}

var (
	_ generic.Token  = (*Memory)(nil)
	_ generic.Minter = (*Memory)(nil)
)
