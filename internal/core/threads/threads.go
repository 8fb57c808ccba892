// Package threads maps opaque thread UUIDs to private call chains. The pump
// is the only caller; handlers never observe chain state beyond the UUID and
// the immediate sender.
package threads

import (
	"sync"

	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
	"github.com/dullfig/xml-pipeline/internal/core/ids"
)

type entry struct {
	id       string
	chain    []string
	parent   string
	children map[string]struct{}
	budget   *Budget
}

// Registry is the thread registry: one entry per issued UUID, entries linked
// parent-to-child so response pruning can cancel whole subtrees. UUIDs are
// never reused; every extension mints a fresh one, so a handler cannot
// correlate the UUID it received with the one delivered to a sub-call.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry builds an empty thread registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*entry{}}
}

// StartChain opens a new conversation with the chain [sender, target] and a
// fresh budget.
func (r *Registry) StartChain(sender, target string, budgetTokens int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{
		id:       ids.NewThreadID(),
		chain:    []string{sender, target},
		children: map[string]struct{}{},
		budget:   NewBudget(budgetTokens),
	}
	r.entries[e.id] = e
	return e.id
}

// ExtendChain mints a child thread whose chain appends next. The child shares
// the parent's budget so a delegation tree draws on one allowance.
func (r *Registry) ExtendChain(id, next string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.entries[id]
	if !ok {
		return "", errspkg.ErrThreadNotFound
	}
	child := &entry{
		id:       ids.NewThreadID(),
		chain:    append(append([]string(nil), parent.chain...), next),
		parent:   id,
		children: map[string]struct{}{},
		budget:   parent.budget,
	}
	r.entries[child.id] = child
	parent.children[child.id] = struct{}{}
	return child.id, nil
}

// PruneForResponse pops the responder off the chain and returns the thread
// UUID and listener name the response routes to. The responder's entry and
// every descendant are removed; the removed ids, the responder's own first,
// are returned so the pump can cancel their in-flight work.
func (r *Registry) PruneForResponse(id string) (callerID, callerName string, removed []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return "", "", nil, errspkg.ErrThreadNotFound
	}
	if len(e.chain) < 2 {
		return "", "", nil, errspkg.ErrChainExhausted
	}

	removed = r.removeSubtree(e)
	callerName = e.chain[len(e.chain)-2]

	if parent, ok := r.entries[e.parent]; ok {
		return parent.id, callerName, removed, nil
	}

	// The responder headed its own tree; mint a fresh entry for the caller so
	// the returned UUID is never a reused one.
	caller := &entry{
		id:       ids.NewThreadID(),
		chain:    append([]string(nil), e.chain[:len(e.chain)-1]...),
		children: map[string]struct{}{},
		budget:   e.budget,
	}
	r.entries[caller.id] = caller
	return caller.id, callerName, removed, nil
}

// PruneTail closes a branch whose handler terminated: the entry and its
// descendants are removed. Returns the removed ids, the entry's own first.
func (r *Registry) PruneTail(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	return r.removeSubtree(e)
}

// PruneSubtree removes the thread and all descendants, returning every
// removed id.
func (r *Registry) PruneSubtree(id string) []string {
	return r.PruneTail(id)
}

// Lookup returns a copy of the chain backing the UUID.
func (r *Registry) Lookup(id string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), e.chain...), true
}

// BudgetOf returns the budget shared by the thread's delegation tree.
func (r *Registry) BudgetOf(id string) *Budget {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		return e.budget
	}
	return nil
}

// Len reports the number of live thread entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// removeSubtree deletes e and its descendants, detaching e from its parent.
// Caller holds the lock. Returns the removed ids, e's own first.
func (r *Registry) removeSubtree(e *entry) []string {
	if parent, ok := r.entries[e.parent]; ok {
		delete(parent.children, e.id)
	}
	removed := []string{e.id}
	stack := []*entry{e}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		delete(r.entries, cur.id)
		for childID := range cur.children {
			if child, ok := r.entries[childID]; ok {
				removed = append(removed, childID)
				stack = append(stack, child)
			}
		}
	}
	return removed
}
