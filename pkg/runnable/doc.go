/*
Package runnable implements composable execution units.

A Unit wraps a single core step and exposes it through four invocation modes:
Invoke, Batch, Stream and Go (async). The modes are derived by the Executor,
so a step only implements what it does natively; a Unit without a stream step
still streams, as a single chunk holding its Invoke result.

Units compose into trees:

	chain := runnable.MustSequence(prompt, model, parser)
	fanout := runnable.MustParallel(
		runnable.Branch{Key: "summary", Unit: summarize},
		runnable.Branch{Key: "keywords", Unit: extract},
	)
	enrich := runnable.MustAssign(runnable.Branch{Key: "context", Unit: retrieve})

WithMessageHistory wraps any Unit in a SessionRunner that reads a session's
history before each call and appends the call's input and output messages once
it succeeds.

All failures are reported with the types in pkg/domain: InputError for
malformed inputs, ConfigError for missing configuration, ExecutionError for
step failures and PartialFailure for failed ParallelMap branches.
*/
package runnable
