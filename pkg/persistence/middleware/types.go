// Package middleware wraps ledger stores with redaction and encryption.
package middleware

import "github.com/aretw0/tabloop/pkg/ports"

// Middleware allows wrapping a LedgerStore to add behavior.
type Middleware func(ports.LedgerStore) ports.LedgerStore

// Chain wraps store with mws. The first middleware is the outermost, so it
// sees entries first on Append and last on List.
func Chain(store ports.LedgerStore, mws ...Middleware) ports.LedgerStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
