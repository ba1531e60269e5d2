package domain

import "sync"

// SymbolRegistry tracks tradable symbols in a thread-safe manner.
// The market feed registers its symbols at startup; order validation
// rejects anything not listed here.
type SymbolRegistry struct {
	mu      sync.RWMutex
	symbols map[string]bool
}

// NewSymbolRegistry creates an empty SymbolRegistry.
func NewSymbolRegistry() *SymbolRegistry {
	return &SymbolRegistry{
		symbols: make(map[string]bool),
	}
}

// Register adds a symbol to the registry. Safe for concurrent use.
func (r *SymbolRegistry) Register(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[symbol] = true
}

// Exists returns true if the symbol has been registered. Safe for concurrent use.
func (r *SymbolRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.symbols[symbol]
}

// List returns all registered symbols in unspecified order.
func (r *SymbolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	return out
}
