// Package nodes provides the built-in node types: sources, transforms and
// sinks that exercise every part of the firing protocol.
package nodes

import (
	"fmt"

	"github.com/aretw0/sluice/pkg/ports"
	"github.com/aretw0/sluice/pkg/registry"
)

// Built-in node type names.
const (
	TypeCounter   = "counter"
	TypeChunks    = "chunks"
	TypeRelay     = "relay"
	TypeScale     = "scale"
	TypeSum       = "sum"
	TypeFilter    = "filter"
	TypeJoin      = "join"
	TypeDelay     = "delay"
	TypeCollector = "collector"
	TypePrinter   = "printer"
)

// Register adds every built-in type to r.
func Register(r *registry.Registry) {
	r.Register(TypeCounter, func() ports.Processor { return &Counter{} })
	r.Register(TypeChunks, func() ports.Processor { return &Chunks{} })
	r.Register(TypeRelay, func() ports.Processor { return &Relay{} })
	r.Register(TypeScale, func() ports.Processor { return &Scale{} })
	r.Register(TypeSum, func() ports.Processor { return &Sum{} })
	r.Register(TypeFilter, func() ports.Processor { return &Filter{} })
	r.Register(TypeJoin, func() ports.Processor { return &Join{} })
	r.Register(TypeDelay, func() ports.Processor { return &Delay{} })
	r.Register(TypeCollector, func() ports.Processor { return &Collector{} })
	r.Register(TypePrinter, func() ports.Processor { return &Printer{} })
}

// Builtins returns a registry holding the built-in types.
func Builtins() *registry.Registry {
	r := registry.NewRegistry()
	Register(r)
	return r
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}
