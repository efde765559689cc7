/*
Package domain contains the core data model of the tabloop loop controller.

It defines the values exchanged between the loop, its collaborators and the
adapters. The package holds no I/O and no persistence, following Hexagonal
Architecture principles.

# Key Entities

  - Action: The classified output of one model round (THINK, CODE, FINAL_ANSWER, UNKNOWN).
  - ExecutionRecord: The outcome of one sandbox run.
  - TraceEntry: A reasoning or code step, as surfaced to callers.
  - LoopResult: The terminal outcome of one loop invocation.
  - LedgerEntry: A persisted record of a completed loop.
*/
package domain
