/*
Package sluice is a dataflow execution engine: a graph of nodes exchanging
tokens over connections, each node driven by its own worker and scheduled on
a pool of execution contexts.

# Concept

A node declares typed input and output ports plus event and slot ports. It
fires when every input holds a token and every output may send; the tokens
it commits are acknowledged by downstream nodes before the node fires again.
Markers (NoMessage, EndOfSequence) travel the same connections as data so that
a consumer always sees one token per input per cycle. Multi-part messages are
split over several cycles and reassembled on dynamic inputs.

Execution modes decide when a node releases its inputs: Sequential after its
own outputs were consumed, Pipelining as soon as it has read them.

# Scheduling

With threading enabled, every connected component of the graph gets its own
execution context. Nodes can instead be put on a private context or in a
named custom group; without threading every node shares one default context.

# Usage

	def, _ := dsl.New("demo").
		Node("numbers", "counter").Param("to", 3).Connect("out", "double.in").
		Node("double", "scale").Param("factor", 2).Connect("out", "sink.in").
		Node("sink", "collector").
		Build()

	eng := sluice.New(sluice.WithName("demo"))
	defer eng.Close()
	if err := eng.Load(def); err != nil {
		log.Fatal(err)
	}
	if err := eng.Run(ctx); err != nil {
		log.Fatal(err)
	}

Definitions can also be read from YAML or HCL files with dsl.LoadFile.

# Persistence

Snapshot and Restore capture node states, connections and custom thread
groups. With WithStore, Save and LoadSnapshot go through a
persistence.Manager backed by the memory, file or Redis adapters.
*/
package sluice
