/*
Package domain contains the core domain models for the intake engine.

It defines the fundamental entities of the interview state machine, such as
Nodes, Candidates, the IntakeRecord, and the per-call Session snapshot. This
package is kept pure and free of external dependencies like I/O or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - Node: one step of the interview script (prompt, required fields, candidates).
  - Candidate: a prioritized transition rule out of a node.
  - IntakeRecord: the structured data collected from the patient, in collection order.
  - Session: the runtime snapshot of one call (current node, record, status).
  - TurnResult: the validated output of the extraction service for a single turn.
*/
package domain
