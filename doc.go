/*
Package intake is a conversation engine for automated pre-appointment medical
interviews. It walks a caller through a scripted graph of questions, merges the
structured fields extracted from each answer into an ordered intake record, and
escalates to clinic staff the moment an emergency indicator surfaces.

# Concept

An interview is a directed graph of nodes. Each node carries a prompt, the
fields it needs answered, and conditional transitions to its successors. The
engine owns state transitions, field validation and escalation; the host owns
I/O and the extraction backend. This hexagonal split lets the same engine sit
behind an HTTP API, a websocket transport bridge, an MCP server or a terminal
session.

# Key Properties

  - Deterministic flow: given the same session state and extraction result,
    the transition is always reproducible.
  - Fail-closed extraction: a malformed or failed extraction degrades to a
    repeat of the current question, never a guessed transition.
  - Emergency first: escalation checks run before any record merge, so an
    alert always snapshots the record as it stood when the caller spoke.
  - Durable sessions: pluggable stores (in-memory, Redis) carry interviews
    across process restarts and multiple instances.

# Usage

The Assistant facade wires the default script, an in-memory store and the
offline keyword extractor. Production hosts swap in their own adapters.

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/surreyclinic/intake"
	)

	func main() {
		assistant := intake.New()

		ctx := context.Background()
		turn, err := assistant.StartInterview(ctx, "")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(turn.Prompt)

		turn, err = assistant.Answer(ctx, turn.Session.ID, "yes, that's fine")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(turn.Prompt)
	}
*/
package intake
