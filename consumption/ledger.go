/*
ledger.go - Consumption ledger: burn tokens against an external reference

PURPOSE:
  A holder pays for an off-ledger service by burning tokens. The ledger
  burns from the holder through its own allowance and records who burned
  how much for which reference. It keeps no other state.

FLOW:
  1. Holder approves the ledger account for amount
  2. Burn(holder, amount, reference)
  3. Allowance is checked, then Token.BurnFrom, then ConsumptionBurned

SEE ALSO:
  - generic/token.go: Token collaborator
  - generic/store.go: Event log
*/
package consumption

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/vesting-engine/generic"
)

// Burn is a completed consumption.
type Burn struct {
	ID        string
	Holder    generic.Address
	Amount    generic.Amount
	Reference string
}

type Ledger struct {
	store   generic.TxStore
	token   generic.Token
	account generic.Address
	clock   generic.Clock
	log     generic.Logger
}

// NewLedger burns through tok as spender `account`. When tok is nil the
// store must implement generic.Token.
func NewLedger(store generic.TxStore, tok generic.Token, account generic.Address, clock generic.Clock, log generic.Logger) (*Ledger, error) {
	if account == "" {
		return nil, fmt.Errorf("%w: consumption account is required", generic.ErrInvalidAddress)
	}
	if tok == nil {
		t, ok := store.(generic.Token)
		if !ok {
			return nil, fmt.Errorf("no token ledger: store %T does not implement Token", store)
		}
		tok = t
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if log == nil {
		log = generic.NopLogger{}
	}
	return &Ledger{store: store, token: tok, account: account, clock: clock, log: log}, nil
}

// Account is the spender holders approve before burning.
func (l *Ledger) Account() generic.Address { return l.account }

// Burn destroys amount from holder and records reference.
func (l *Ledger) Burn(ctx context.Context, holder generic.Address, amount generic.Amount, reference string) (Burn, error) {
	if holder == "" {
		return Burn{}, fmt.Errorf("%w: holder is required", generic.ErrInvalidAddress)
	}
	if !amount.IsPositive() {
		return Burn{}, fmt.Errorf("%w: %v", generic.ErrInvalidAmount, amount)
	}

	b := Burn{ID: uuid.NewString(), Holder: holder, Amount: amount, Reference: reference}
	err := l.store.WithTx(ctx, func(st generic.Store) error {
		tok := l.token
		if t, ok := st.(generic.Token); ok {
			tok = t
		}

		allowed, err := tok.Allowance(ctx, holder, l.account)
		if err != nil {
			return err
		}
		if allowed.LessThan(amount) {
			return &generic.FundsError{
				Kind:      generic.ErrAllowanceInsufficient,
				Holder:    holder,
				Spender:   l.account,
				Available: allowed,
				Requested: amount,
			}
		}
		if err := tok.BurnFrom(ctx, l.account, holder, amount); err != nil {
			return err
		}
		return st.AppendEvent(ctx, generic.Event{
			ID:      b.ID,
			Type:    generic.EventConsumptionBurned,
			At:      l.clock.Now(),
			Account: holder,
			Payload: map[string]string{
				"amount":    amount.String(),
				"reference": reference,
			},
		})
	})
	if err != nil {
		return Burn{}, err
	}

	l.log.Info("[Consumption] %s burned %s for %q", holder, amount.EtherString(), reference)
	return b, nil
}

// Burns lists recorded consumptions, optionally for one holder.
func (l *Ledger) Burns(ctx context.Context, holder *generic.Address, limit int) ([]Burn, error) {
	events, err := l.store.Events(ctx, generic.EventFilter{
		Account: holder,
		Types:   []generic.EventType{generic.EventConsumptionBurned},
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	burns := make([]Burn, 0, len(events))
	for _, ev := range events {
		amount, err := generic.ParseAmount(ev.Payload["amount"])
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		burns = append(burns, Burn{ID: ev.ID, Holder: ev.Account, Amount: amount, Reference: ev.Payload["reference"]})
	}
	return burns, nil
}
