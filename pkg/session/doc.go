/*
Package session implements session-scoped history access.

Manager sits between the execution layer and a ports.HistoryStore. Reads go
straight to the store; appends are serialized per session with
reference-counted local mutexes, optionally backed by a distributed lock so
that replicas sharing one store never interleave two commits on the same
session. Different sessions never contend.
*/
package session
