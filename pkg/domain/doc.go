/*
Package domain contains the core data model of the sluice dataflow engine.

It is kept free of I/O and concurrency so that every other package can share it.

# Key Entities

  - Token: immutable unit of data or marker (NoMessage, EndOfSequence) carried by a connection.
  - ConnectionState: the READY_TO_RECEIVE → UNREAD → READ → DONE protocol of a connection.
  - WorkerState / ExecutionMode: the observable lifecycle of a node and its acknowledgement policy.
  - NodeState / GraphSnapshot: what is persisted and restored by a StateStore.
  - Event: the read-only event stream exposed to monitoring collaborators.
*/
package domain
