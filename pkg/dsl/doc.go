/*
Package dsl describes dataflow graphs declaratively.

A Definition lists labelled nodes and the links between their ports. It can be
read from YAML or HCL files, or assembled in Go with the fluent Builder:

	def, err := dsl.New("doubler").
		Node("numbers", "counter").Param("to", 5).Connect("out", "double.in").
		Node("double", "scale").Param("factor", 2).Pipelining().Connect("out", "sink.in").
		Node("sink", "collector").
		Build()

The same graph in HCL:

	name = "doubler"

	node "counter" "numbers" {
	  params = { to = 5 }
	}

	node "scale" "double" {
	  params = { factor = 2 }
	  mode   = "pipelining"
	}

	node "collector" "sink" {}

	link {
	  from = "numbers.out"
	  to   = "double.in"
	}

	link {
	  from = "double.out"
	  to   = "sink.in"
	}

A Definition is only a description; sluice.Engine instantiates it.
*/
package dsl
