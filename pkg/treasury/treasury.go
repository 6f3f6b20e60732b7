package treasury

import (
	"errors"
	"fmt"
	"sync"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/chain"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// ErrInsufficientFunds is returned when the debited account cannot cover
// the transfer amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Treasury moves value between principals. Transfer is atomic with the
// caller's state mutation: a failed transfer must leave the calling
// component's state untouched, so components transfer before writing.
type Treasury interface {
	Transfer(amount uint64, from, to contracts.Principal) error
}

// Book is an in-memory balance book with a hash-chained transfer journal.
// Thread-safe; each Transfer is a single atomic unit.
type Book struct {
	mu       sync.Mutex
	balances map[contracts.Principal]uint64
	journal  *Journal
	clock    chain.HeightClock
}

// NewBook creates an empty book. Journal entries are stamped with height
// zero until a clock is attached via WithClock.
func NewBook() *Book {
	return &Book{
		balances: make(map[contracts.Principal]uint64),
		journal:  NewJournal(),
	}
}

// WithClock stamps journal entries with the chain height.
func (b *Book) WithClock(clock chain.HeightClock) *Book {
	b.clock = clock
	return b
}

// Credit funds an account. Used to seed balances; not a gated pipeline
// operation, so it is not journaled as a transfer.
func (b *Book) Credit(account contracts.Principal, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Balance returns the current balance of an account.
func (b *Book) Balance(account contracts.Principal) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}

// Transfer debits from and credits to, journaling the movement.
// A zero-amount transfer still journals: fee-gated calls record exactly
// one entry even when the configured fee is zero.
func (b *Book) Transfer(amount uint64, from, to contracts.Principal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, ErrInsufficientFunds)
	}

	var height uint64
	if b.clock != nil {
		height = b.clock.Height()
	}
	if _, err := b.journal.Append(Transfer{Amount: amount, From: from, To: to}, height); err != nil {
		return fmt.Errorf("journal transfer: %w", err)
	}

	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}

// Journal exposes the transfer journal for audit.
func (b *Book) Journal() *Journal {
	return b.journal
}
