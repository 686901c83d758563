/*
Package session implements the session orchestrator: the layer between
transports (HTTP, WebSocket, MCP) and the flow engine.

It owns the session lifecycle, serializes concurrent turns per session with
reference-counted locks (plus an optional distributed locker across
replicas), bounds extraction adapter calls with a timeout, and fans the
engine's side-effecting events out to the registered sinks.
*/
package session
