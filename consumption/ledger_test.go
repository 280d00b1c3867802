package consumption_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vesting-engine/consumption"
	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/generic/store"
	"github.com/warp/vesting-engine/token"
)

const holder generic.Address = "other"

func newLedger(t *testing.T) (*consumption.Ledger, *token.Memory) {
	t.Helper()
	tok := token.NewMemory()
	require.NoError(t, tok.Mint(context.Background(), holder, generic.Ether(100)))
	l, err := consumption.NewLedger(store.NewMemory(), tok, "consumption", nil, nil)
	require.NoError(t, err)
	return l, tok
}

func TestBurn_RecordsAndReducesSupply(t *testing.T) {
	// GIVEN: holder has 100 and approves 50
	// WHEN: Burning 50 for "123-456-789"
	// THEN: Balance and supply drop by 50, the burn is recorded
	ctx := context.Background()
	l, tok := newLedger(t)
	require.NoError(t, tok.Approve(ctx, holder, l.Account(), generic.Ether(50)))

	b, err := l.Burn(ctx, holder, generic.Ether(50), "123-456-789")

	require.NoError(t, err)
	assert.Equal(t, "123-456-789", b.Reference)
	bal, _ := tok.BalanceOf(ctx, holder)
	supply, _ := tok.TotalSupply(ctx)
	assert.True(t, bal.Equal(generic.Ether(50)), "balance %v", bal)
	assert.True(t, supply.Equal(generic.Ether(50)), "supply %v", supply)

	burns, err := l.Burns(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, burns, 1)
	assert.Equal(t, holder, burns[0].Holder)
	assert.True(t, burns[0].Amount.Equal(generic.Ether(50)))
}

func TestBurn_AllowanceInsufficient(t *testing.T) {
	ctx := context.Background()
	l, tok := newLedger(t)
	require.NoError(t, tok.Approve(ctx, holder, l.Account(), generic.Ether(10)))

	_, err := l.Burn(ctx, holder, generic.Ether(11), "ref")

	assert.True(t, errors.Is(err, generic.ErrAllowanceInsufficient), "got %v", err)
	assert.True(t, generic.IsInsufficientFunds(err))
	burns, _ := l.Burns(ctx, nil, 0)
	assert.Empty(t, burns)
}

func TestBurn_BalanceInsufficient(t *testing.T) {
	ctx := context.Background()
	l, tok := newLedger(t)
	require.NoError(t, tok.Approve(ctx, holder, l.Account(), generic.Ether(500)))

	_, err := l.Burn(ctx, holder, generic.Ether(101), "ref")

	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance), "got %v", err)
	supply, _ := tok.TotalSupply(ctx)
	assert.True(t, supply.Equal(generic.Ether(100)))
}

func TestBurn_RejectsZero(t *testing.T) {
	l, _ := newLedger(t)

	_, err := l.Burn(context.Background(), holder, generic.ZeroAmount(), "ref")

	assert.True(t, generic.IsValidation(err))
}
