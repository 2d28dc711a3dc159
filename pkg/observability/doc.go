/*
Package observability turns braid lifecycle events into metrics and logs.

Metrics registers Prometheus collectors and exposes them as
domain.LifecycleHooks; LogHooks does the same for a slog.Logger. Both can be
combined with MultiHooks and passed to an Executor, a session.Manager or a
single call via runnable.WithHooks.
*/
package observability
