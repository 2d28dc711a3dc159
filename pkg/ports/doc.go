/*
Package ports defines the driven ports (interfaces) for braid.

These interfaces decouple the execution layer from concrete backends, allowing
pipelines to run against in-memory, file or Redis history stores, and against
any model or retriever collaborator.

# Key Interfaces

  - HistoryStore: Message history per session (get-or-create, atomic append).
  - SessionLister / SessionDeleter: Optional admin capabilities used by tooling.
  - DistributedLocker: Distributed locking for concurrent appends across replicas.
  - ChatModel / StreamingChatModel: The model collaborator adapted into Units.
  - Retriever: The retrieval collaborator adapted into Units.
*/
package ports
