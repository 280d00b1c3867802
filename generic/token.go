package generic

import "context"

// =============================================================================
// TOKEN - External fungible token ledger
// =============================================================================

// Token is the fungible token collaborator. The engine holds principal and
// the reward pool in its own account and moves funds only through this
// interface.
//
// Failures are reported as *FundsError wrapping ErrInsufficientBalance or
// ErrAllowanceExceeded; ErrInvalidAmount for negative amounts.
type Token interface {
	BalanceOf(ctx context.Context, holder Address) (Amount, error)
	TotalSupply(ctx context.Context) (Amount, error)

	// Transfer moves amount from `from` to `to`.
	Transfer(ctx context.Context, from, to Address, amount Amount) error

	// Approve sets spender's allowance over owner's balance.
	Approve(ctx context.Context, owner, spender Address, amount Amount) error
	Allowance(ctx context.Context, owner, spender Address) (Amount, error)

	// TransferFrom moves amount from `from` to `to`, consuming spender's allowance.
	TransferFrom(ctx context.Context, spender, from, to Address, amount Amount) error

	// Burn destroys amount from holder, reducing total supply.
	Burn(ctx context.Context, holder Address, amount Amount) error

	// BurnFrom destroys amount from holder, consuming spender's allowance.
	BurnFrom(ctx context.Context, spender, holder Address, amount Amount) error
}

// Minter is implemented by token backends that can be seeded with a genesis
// allocation.
type Minter interface {
	Mint(ctx context.Context, to Address, amount Amount) error
}
