/*
Package domain contains the core value types shared by every braid package.

It defines the data that flows between Units, the invocation configuration,
and the error taxonomy returned by the execution layer. This package is kept
pure and free of I/O so that adapters and runnables can depend on it without
pulling in each other.

# Key Entities

  - Message: One entry of a conversation (role + content), the unit of history.
  - Document: A retrieved piece of content handed to formatters.
  - Values: The mapping type used for keyed inputs and outputs.
  - Config: Per-invocation configuration (session_id and other configurable keys).
  - InputError, ConfigError, ExecutionError, PartialFailure: The error taxonomy.
*/
package domain
