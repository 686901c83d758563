package domain

import "errors"

// ErrUnknownNode is returned when a node ID is not present in the script.
// At load time this is a configuration bug and aborts startup.
var ErrUnknownNode = errors.New("unknown node")

// ErrSessionNotFound is returned when a session ID cannot be found in the
// store, including sessions already ended and released.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionTerminal is returned when a turn arrives for a session that
// already reached a final status.
var ErrSessionTerminal = errors.New("session already terminal")

// ErrMalformedTurnResult is returned by extraction adapters when the service
// response cannot be decoded into a TurnResult. Callers degrade it to a
// zero-confidence continue rather than crashing the session.
var ErrMalformedTurnResult = errors.New("malformed turn result")

// ErrUnknownSpecialty is returned when a specialty hint has no entry node.
var ErrUnknownSpecialty = errors.New("unknown specialty")
