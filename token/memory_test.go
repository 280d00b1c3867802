package token_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/token"
)

func TestMemory_MintAndTransfer(t *testing.T) {
	// GIVEN: alice holds 100
	// WHEN: alice transfers 40 to bob
	// THEN: balances move, supply is unchanged
	ctx := context.Background()
	tok := token.NewMemory()
	require.NoError(t, tok.Mint(ctx, "alice", generic.Ether(100)))

	require.NoError(t, tok.Transfer(ctx, "alice", "bob", generic.Ether(40)))

	alice, _ := tok.BalanceOf(ctx, "alice")
	bob, _ := tok.BalanceOf(ctx, "bob")
	supply, _ := tok.TotalSupply(ctx)
	assert.True(t, alice.Equal(generic.Ether(60)), "alice: %v", alice)
	assert.True(t, bob.Equal(generic.Ether(40)), "bob: %v", bob)
	assert.True(t, supply.Equal(generic.Ether(100)), "supply: %v", supply)
}

func TestMemory_TransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	tok := token.NewMemory()
	require.NoError(t, tok.Mint(ctx, "alice", generic.Ether(1)))

	err := tok.Transfer(ctx, "alice", "bob", generic.Ether(2))

	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance))
	var fe *generic.FundsError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, generic.Address("alice"), fe.Holder)
	alice, _ := tok.BalanceOf(ctx, "alice")
	assert.True(t, alice.Equal(generic.Ether(1)), "balance must be untouched")
}

func TestMemory_TransferFromConsumesAllowance(t *testing.T) {
	// GIVEN: alice approves the engine for 10
	// WHEN: the engine pulls 4 then 7
	// THEN: first succeeds, second exceeds the remaining 6
	ctx := context.Background()
	tok := token.NewMemory()
	require.NoError(t, tok.Mint(ctx, "alice", generic.Ether(100)))
	require.NoError(t, tok.Approve(ctx, "alice", "engine", generic.Ether(10)))

	require.NoError(t, tok.TransferFrom(ctx, "engine", "alice", "engine", generic.Ether(4)))
	err := tok.TransferFrom(ctx, "engine", "alice", "engine", generic.Ether(7))

	assert.True(t, errors.Is(err, generic.ErrAllowanceExceeded), "got %v", err)
	left, _ := tok.Allowance(ctx, "alice", "engine")
	assert.True(t, left.Equal(generic.Ether(6)), "allowance: %v", left)
	held, _ := tok.BalanceOf(ctx, "engine")
	assert.True(t, held.Equal(generic.Ether(4)), "engine: %v", held)
}

func TestMemory_TransferFromBalanceShortfallKeepsAllowance(t *testing.T) {
	ctx := context.Background()
	tok := token.NewMemory()
	require.NoError(t, tok.Mint(ctx, "alice", generic.Ether(1)))
	require.NoError(t, tok.Approve(ctx, "alice", "engine", generic.Ether(10)))

	err := tok.TransferFrom(ctx, "engine", "alice", "engine", generic.Ether(5))

	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance), "got %v", err)
	left, _ := tok.Allowance(ctx, "alice", "engine")
	assert.True(t, left.Equal(generic.Ether(10)))
}

func TestMemory_BurnAndBurnFrom(t *testing.T) {
	ctx := context.Background()
	tok := token.NewMemory()
	require.NoError(t, tok.Mint(ctx, "alice", generic.Ether(10)))
	require.NoError(t, tok.Approve(ctx, "alice", "ledger", generic.Ether(3)))

	require.NoError(t, tok.Burn(ctx, "alice", generic.Ether(2)))
	require.NoError(t, tok.BurnFrom(ctx, "ledger", "alice", generic.Ether(3)))
	err := tok.BurnFrom(ctx, "ledger", "alice", generic.Ether(1))

	assert.True(t, errors.Is(err, generic.ErrAllowanceExceeded))
	supply, _ := tok.TotalSupply(ctx)
	alice, _ := tok.BalanceOf(ctx, "alice")
	assert.True(t, supply.Equal(generic.Ether(5)), "supply: %v", supply)
	assert.True(t, alice.Equal(generic.Ether(5)), "alice: %v", alice)
}

func TestMemory_NegativeAmountRejected(t *testing.T) {
	ctx := context.Background()
	tok := token.NewMemory()

	err := tok.Mint(ctx, "alice", generic.NewAmount(-1))

	assert.True(t, errors.Is(err, generic.ErrInvalidAmount))
}
