/*
Package ports defines the driven ports (interfaces) for the tabloop loop controller.

These interfaces decouple the loop from external implementations, allowing it
to work with various model providers, telemetry sinks and ledger backends.

# Key Interfaces

  - Model: Produces a text completion for a prompt (OpenAI, Gemini, scripted).
  - Sandbox: Runs a model-written snippet against the working table.
  - Sink: Receives best-effort lifecycle events.
  - LedgerStore: Persists loop outcomes.
  - DistributedLocker: Coordinates ledger writes across replicas.
*/
package ports
