package threads

import "sync/atomic"

// Budget is the token allowance shared by every hop of a delegation tree.
// Handlers report usage out-of-band; the pump debits here.
type Budget struct {
	unlimited bool
	remaining atomic.Int64
}

// NewBudget starts a budget with the given allowance. A non-positive
// allowance means unlimited.
func NewBudget(tokens int64) *Budget {
	b := &Budget{}
	if tokens <= 0 {
		b.unlimited = true
		return b
	}
	b.remaining.Store(tokens)
	return b
}

// Debit subtracts tokens and reports whether the budget is now exhausted.
func (b *Budget) Debit(tokens int64) bool {
	if b == nil || b.unlimited || tokens <= 0 {
		return b.Exhausted()
	}
	return b.remaining.Add(-tokens) <= 0
}

// Remaining returns the current allowance. Unlimited budgets report zero.
func (b *Budget) Remaining() int64 {
	if b == nil {
		return 0
	}
	return b.remaining.Load()
}

// Exhausted reports whether the allowance has run out.
func (b *Budget) Exhausted() bool {
	if b == nil || b.unlimited {
		return false
	}
	return b.remaining.Load() <= 0
}
