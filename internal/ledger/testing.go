package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites a wallet balance when using
// the in-memory store. It bypasses the transaction log.
func SeedBalance(s Store, walletID string, amount decimal.Decimal) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if w, exists := mem.wallets[walletID]; exists {
			w.Balance = amount
			mem.wallets[walletID] = w
		}
	}
}
