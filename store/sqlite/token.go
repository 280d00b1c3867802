package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/vesting-engine/generic"
)

// =============================================================================
// TOKEN LEDGER (generic.Token interface)
// =============================================================================
// Balances are read, adjusted in Go, and upserted. Every mutating call runs
// inside a transaction, so a failed check leaves no partial write.

func checkAmount(amount generic.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %v", generic.ErrInvalidAmount, amount)
	}
	return nil
}

func (v view) scanAmount(ctx context.Context, query string, args ...any) (generic.Amount, error) {
	var raw string
	err := v.q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ZeroAmount(), nil
	}
	if err != nil {
		return generic.Amount{}, err
	}
	return generic.ParseAmount(raw)
}

func (v view) BalanceOf(ctx context.Context, holder generic.Address) (generic.Amount, error) {
	return v.scanAmount(ctx, `SELECT balance FROM token_balances WHERE holder = ?`, string(holder))
}

func (v view) TotalSupply(ctx context.Context) (generic.Amount, error) {
	raw, err := v.setting(ctx, settingTokenSupply)
	if err != nil || raw == "" {
		return generic.ZeroAmount(), err
	}
	return generic.ParseAmount(raw)
}

func (v view) Allowance(ctx context.Context, owner, spender generic.Address) (generic.Amount, error) {
	return v.scanAmount(ctx, `SELECT amount FROM token_allowances WHERE owner = ? AND spender = ?`,
		string(owner), string(spender))
}

func (v view) setBalance(ctx context.Context, holder generic.Address, amount generic.Amount) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO token_balances (holder, balance) VALUES (?, ?)
		ON CONFLICT(holder) DO UPDATE SET balance = excluded.balance
	`, string(holder), amount.String())
	return err
}

func (v view) setAllowance(ctx context.Context, owner, spender generic.Address, amount generic.Amount) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO token_allowances (owner, spender, amount) VALUES (?, ?, ?)
		ON CONFLICT(owner, spender) DO UPDATE SET amount = excluded.amount
	`, string(owner), string(spender), amount.String())
	return err
}

func (v view) adjustSupply(ctx context.Context, delta generic.Amount) error {
	supply, err := v.TotalSupply(ctx)
	if err != nil {
		return err
	}
	return v.saveSetting(ctx, settingTokenSupply, supply.Add(delta).String())
}

func (v view) credit(ctx context.Context, holder generic.Address, amount generic.Amount) error {
	bal, err := v.BalanceOf(ctx, holder)
	if err != nil {
		return err
	}
	return v.setBalance(ctx, holder, bal.Add(amount))
}

func (v view) debit(ctx context.Context, holder generic.Address, amount generic.Amount) error {
	bal, err := v.BalanceOf(ctx, holder)
	if err != nil {
		return err
	}
	if bal.LessThan(amount) {
		return &generic.FundsError{Kind: generic.ErrInsufficientBalance, Holder: holder, Available: bal, Requested: amount}
	}
	return v.setBalance(ctx, holder, bal.Sub(amount))
}

// spend consumes spender's allowance, checked before any balance change.
func (v view) spend(ctx context.Context, owner, spender generic.Address, amount generic.Amount) error {
	allowed, err := v.Allowance(ctx, owner, spender)
	if err != nil {
		return err
	}
	if allowed.LessThan(amount) {
		return &generic.FundsError{Kind: generic.ErrAllowanceExceeded, Holder: owner, Spender: spender, Available: allowed, Requested: amount}
	}
	return v.setAllowance(ctx, owner, spender, allowed.Sub(amount))
}

func (v view) Mint(ctx context.Context, to generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := v.credit(ctx, to, amount); err != nil {
		return err
	}
	return v.adjustSupply(ctx, amount)
}

func (v view) Transfer(ctx context.Context, from, to generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := v.debit(ctx, from, amount); err != nil {
		return err
	}
	return v.credit(ctx, to, amount)
}

func (v view) Approve(ctx context.Context, owner, spender generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return v.setAllowance(ctx, owner, spender, amount)
}

func (v view) TransferFrom(ctx context.Context, spender, from, to generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := v.spend(ctx, from, spender, amount); err != nil {
		return err
	}
	if err := v.debit(ctx, from, amount); err != nil {
		return err
	}
	return v.credit(ctx, to, amount)
}

func (v view) Burn(ctx context.Context, holder generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := v.debit(ctx, holder, amount); err != nil {
		return err
	}
	return v.adjustSupply(ctx, generic.ZeroAmount().Sub(amount))
}

func (v view) BurnFrom(ctx context.Context, spender, holder generic.Address, amount generic.Amount) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := v.spend(ctx, holder, spender, amount); err != nil {
		return err
	}
	if err := v.debit(ctx, holder, amount); err != nil {
		return err
	}
	return v.adjustSupply(ctx, generic.ZeroAmount().Sub(amount))
}

// =============================================================================
// STORE - Locked wrappers
// =============================================================================

func (s *Store) BalanceOf(ctx context.Context, holder generic.Address) (generic.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().BalanceOf(ctx, holder)
}

func (s *Store) TotalSupply(ctx context.Context) (generic.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().TotalSupply(ctx)
}

func (s *Store) Allowance(ctx context.Context, owner, spender generic.Address) (generic.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Allowance(ctx, owner, spender)
}

func (s *Store) Mint(ctx context.Context, to generic.Address, amount generic.Amount) error {
	return s.inTx(ctx, func(v view) error { return v.Mint(ctx, to, amount) })
}

func (s *Store) Transfer(ctx context.Context, from, to generic.Address, amount generic.Amount) error {
	return s.inTx(ctx, func(v view) error { return v.Transfer(ctx, from, to, amount) })
}

func (s *Store) Approve(ctx context.Context, owner, spender generic.Address, amount generic.Amount) error {
	return s.inTx(ctx, func(v view) error { return v.Approve(ctx, owner, spender, amount) })
}

func (s *Store) TransferFrom(ctx context.Context, spender, from, to generic.Address, amount generic.Amount) error {
	return s.inTx(ctx, func(v view) error { return v.TransferFrom(ctx, spender, from, to, amount) })
}

func (s *Store) Burn(ctx context.Context, holder generic.Address, amount generic.Amount) error {
	return s.inTx(ctx, func(v view) error { return v.Burn(ctx, holder, amount) })
}

func (s *Store) BurnFrom(ctx context.Context, spender, holder generic.Address, amount generic.Amount) error {
	return s.inTx(ctx, func(v view) error { return v.BurnFrom(ctx, spender, holder, amount) })
}
