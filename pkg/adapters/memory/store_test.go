package memory_test

import (
	"testing"

	"github.com/aretw0/tabloop/pkg/adapters/memory"
	"github.com/aretw0/tabloop/pkg/ports"
)

func TestMemoryLedgerStore_Contract(t *testing.T) {
	store := memory.NewLedgerStore()
	ports.RunLedgerStoreContract(t, store)
}
