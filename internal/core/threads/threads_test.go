package threads

import (
	"errors"
	"reflect"
	"testing"

	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
)

func TestStartChainOpensConversation(t *testing.T) {
	r := NewRegistry()
	id := r.StartChain("console", "greeter", 100)

	chain, ok := r.Lookup(id)
	if !ok {
		t.Fatal("chain not found")
	}
	if !reflect.DeepEqual(chain, []string{"console", "greeter"}) {
		t.Fatalf("unexpected chain %v", chain)
	}
	if r.BudgetOf(id) == nil {
		t.Fatal("expected a budget")
	}
}

func TestExtendChainMintsFreshUUID(t *testing.T) {
	r := NewRegistry()
	parent := r.StartChain("console", "greeter", 100)

	child, err := r.ExtendChain(parent, "shouter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if child == parent {
		t.Fatal("child reused the parent UUID")
	}
	chain, _ := r.Lookup(child)
	if !reflect.DeepEqual(chain, []string{"console", "greeter", "shouter"}) {
		t.Fatalf("unexpected child chain %v", chain)
	}
	if _, ok := r.Lookup(parent); !ok {
		t.Fatal("extension removed the parent entry")
	}
}

func TestExtendChainSharesBudget(t *testing.T) {
	r := NewRegistry()
	parent := r.StartChain("console", "greeter", 100)
	child, err := r.ExtendChain(parent, "shouter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.BudgetOf(child).Debit(100)
	if !r.BudgetOf(parent).Exhausted() {
		t.Fatal("debit on the child did not drain the parent's budget")
	}
}

func TestExtendChainUnknownThread(t *testing.T) {
	r := NewRegistry()
	if _, err := r.ExtendChain("missing", "shouter"); !errors.Is(err, errspkg.ErrThreadNotFound) {
		t.Fatalf("expected thread not found, got %v", err)
	}
}

func TestPruneForResponseReturnsCaller(t *testing.T) {
	r := NewRegistry()
	parent := r.StartChain("console", "greeter", 0)
	child, _ := r.ExtendChain(parent, "shouter")

	callerID, callerName, removed, err := r.PruneForResponse(child)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if callerID != parent {
		t.Fatalf("expected caller id %s, got %s", parent, callerID)
	}
	if callerName != "greeter" {
		t.Fatalf("expected caller greeter, got %s", callerName)
	}
	if len(removed) != 1 || removed[0] != child {
		t.Fatalf("unexpected removed ids %v", removed)
	}
	if _, ok := r.Lookup(child); ok {
		t.Fatal("responder entry survived the prune")
	}
}

func TestPruneForResponseDiscardsSubChains(t *testing.T) {
	r := NewRegistry()
	root := r.StartChain("console", "greeter", 0)
	mid, _ := r.ExtendChain(root, "planner")
	leafA, _ := r.ExtendChain(mid, "search")
	leafB, _ := r.ExtendChain(mid, "calc")

	_, _, removed, err := r.PruneForResponse(mid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("expected 3 removed entries, got %v", removed)
	}
	for _, id := range []string{mid, leafA, leafB} {
		if _, ok := r.Lookup(id); ok {
			t.Fatalf("entry %s survived the prune", id)
		}
	}
	if _, ok := r.Lookup(root); !ok {
		t.Fatal("caller entry was removed")
	}
}

func TestPruneForResponseAtTreeRootMintsFreshUUID(t *testing.T) {
	r := NewRegistry()
	root := r.StartChain("console", "greeter", 0)

	callerID, callerName, _, err := r.PruneForResponse(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if callerName != "console" {
		t.Fatalf("expected caller console, got %s", callerName)
	}
	if callerID == root {
		t.Fatal("caller UUID reuses the pruned one")
	}
	chain, ok := r.Lookup(callerID)
	if !ok {
		t.Fatal("fresh caller entry missing")
	}
	if !reflect.DeepEqual(chain, []string{"console"}) {
		t.Fatalf("unexpected caller chain %v", chain)
	}
}

func TestPruneForResponseExhaustedChain(t *testing.T) {
	r := NewRegistry()
	root := r.StartChain("console", "greeter", 0)
	callerID, _, _, err := r.PruneForResponse(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The fresh caller entry holds a single-name chain; another response has
	// nowhere to go.
	if _, _, _, err := r.PruneForResponse(callerID); !errors.Is(err, errspkg.ErrChainExhausted) {
		t.Fatalf("expected chain exhausted, got %v", err)
	}
}

func TestPruneTailRemovesBranch(t *testing.T) {
	r := NewRegistry()
	root := r.StartChain("console", "greeter", 0)
	child, _ := r.ExtendChain(root, "shouter")

	removed := r.PruneTail(child)
	if len(removed) != 1 || removed[0] != child {
		t.Fatalf("unexpected removed ids %v", removed)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 live entry, got %d", r.Len())
	}
	if r.PruneTail("missing") != nil {
		t.Fatal("expected nil for an unknown thread")
	}
}

func TestUUIDsAreNeverReused(t *testing.T) {
	r := NewRegistry()
	seen := map[string]bool{}
	id := r.StartChain("console", "a", 0)
	seen[id] = true
	for i := 0; i < 50; i++ {
		next, err := r.ExtendChain(id, "b")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[next] {
			t.Fatalf("UUID %s issued twice", next)
		}
		seen[next] = true
		id = next
	}
}

func TestBudgetDebitAndExhaustion(t *testing.T) {
	b := NewBudget(10)
	if b.Exhausted() {
		t.Fatal("fresh budget reported exhausted")
	}
	if b.Debit(4) {
		t.Fatal("partial debit reported exhaustion")
	}
	if !b.Debit(6) {
		t.Fatal("final debit did not report exhaustion")
	}
	if !b.Exhausted() {
		t.Fatal("drained budget not exhausted")
	}
}

func TestBudgetUnlimited(t *testing.T) {
	b := NewBudget(0)
	if b.Debit(1 << 40) {
		t.Fatal("unlimited budget reported exhaustion")
	}
	if b.Exhausted() {
		t.Fatal("unlimited budget exhausted")
	}
}

func TestBudgetNilIsSafe(t *testing.T) {
	var b *Budget
	if b.Exhausted() {
		t.Fatal("nil budget reported exhausted")
	}
	if b.Debit(10) {
		t.Fatal("nil budget reported exhaustion")
	}
}
