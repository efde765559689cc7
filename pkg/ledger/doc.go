/*
Package ledger implements the memory ledger: an append-only record of loop
outcomes with summary statistics.

A Ledger wraps any ports.LedgerStore. Writes are serialised with a local mutex
and, when a ports.DistributedLocker is configured, with a lock shared by every
replica writing to the same store.
*/
package ledger
