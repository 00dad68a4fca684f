// Package types defines the shared domain model of alterflow: alters, teams,
// discussion phases, contributions, transcripts, run context and the unified
// error taxonomy.
//
// The types package is the lowest-level package with no internal dependencies,
// so every other package (config, rag, llm, orchestrator) can import it
// without creating cycles. Everything here is either immutable after
// configuration load (Alter, Team, Registry) or exclusively owned by a single
// orchestration run (Transcript, RunContext).
package types
