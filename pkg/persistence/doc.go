/*
Package persistence orchestrates snapshot storage.

Manager serialises access to each named graph snapshot, in process with
reference-counted mutexes and across replicas with an optional
ports.DistributedLocker. The middleware subpackage wraps any
ports.StateStore with encryption or parameter redaction.
*/
package persistence
