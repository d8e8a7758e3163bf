/*
Package ports defines the interfaces between the sluice engine and the code around it.

# Key Interfaces

  - Processor / AsyncProcessor: the node processing contract, with optional
    capabilities (Ticker, ReadinessChecker, MarkerProcessor, Resetter, Configurable, Essential).
  - IO / PortBuilder: what a processor sees during setup and during one firing.
  - Executor: an execution context that runs tasks one at a time.
  - StateStore: persists and loads GraphSnapshots.
  - DistributedLocker: distributed locking for snapshots shared between replicas.
*/
package ports
