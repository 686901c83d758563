/*
Package script loads and validates the interview script: the immutable set of
nodes the flow engine walks during a call.

A script is parsed once at process start from YAML (or the embedded default)
and is then shared read-only across all sessions. Validation is strict and
fatal: a broken transition target or a non-terminal node without an
unconditional fallback is a configuration bug, not a runtime condition to
recover from.
*/
package script
