/*
Package braid composes small processing Units into pipelines and runs them
with per-session conversation history.

A Unit (package runnable) is one step with four ways to run it: Invoke for
one input, Batch for many, Stream for incremental output and Go for a Future.
Units combine through Sequence (output of one feeds the next), ParallelMap
(every branch gets the same input, the results come back as one mapping) and
Assign (Passthrough plus computed keys merged into the input). Failures are
typed: InputError, ConfigError, ExecutionError and PartialFailure live in
package domain and survive nesting through errors.As.

# Session history

WithMessageHistory wraps any Unit so each call reads the history of the
session named in its configuration, sees it as part of its input and, only
on success, appends the new input and output messages in one atomic commit.
Calls for the same session are serialized by a session.Manager; different
sessions run in parallel. Histories live behind ports.HistoryStore, with
memory, file and Redis adapters provided.

# Usage

	rt := braid.New(nil) // in-memory history
	chat := rt.WithHistory(
		braid.ChatChain("You are terse.", echo.New(), nil),
		braid.ChatHistoryOptions()...,
	)

	out, err := chat.Invoke(ctx, "hello", rt.CallOptions("session-1")...)

The braid command (cmd/braid) runs the same pipeline as an interactive chat
or as an HTTP server.
*/
package braid
