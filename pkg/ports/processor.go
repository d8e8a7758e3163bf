package ports

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// PortBuilder is handed to a Processor during setup to declare its ports.
type PortBuilder interface {
	AddInput(spec domain.PortSpec)
	AddOutput(spec domain.PortSpec)
	// AddSlot declares a slot; handler runs on the node's execution context.
	AddSlot(name string, handler func(payload any))
	AddEvent(name string)
}

// IO is the view a Processor has of one firing.
// It is only valid until the processing call (or its continuation) returns.
type IO interface {
	// Read returns the token consumed on the named input for this cycle.
	// Unconnected optional inputs read as a NoMessage marker.
	Read(input string) (*domain.Token, error)
	// Value returns the payload on the named input, or nil for markers.
	Value(input string) any
	// Write buffers a payload on the named output. It is committed when the
	// cycle completes successfully.
	Write(output string, payload any) error
	// WriteToken buffers a pre-built token (e.g. a marker) on the named output.
	WriteToken(output string, token *domain.Token) error
	// SetMultipart flags the next commit on output as a fragment.
	SetMultipart(output string, multipart, last bool) error
	// Trigger fires the named event.
	Trigger(event string, payload any) error
	// Params returns a copy of the node's parameter dictionary.
	Params() map[string]any
	Logger() *slog.Logger
}

// Processor is the node processing contract.
//
// A plain error returned from Process is recoverable: the node records it,
// nothing it wrote is sent and every output carries a NoMessage marker for
// that cycle. An error wrapping domain.ErrUnrecoverable is fatal, and so is a
// panic: the node and every node connected to it are halted, while unrelated
// parts of the graph keep running. Node logic that can fail on bad input
// should return an error rather than panic.
type Processor interface {
	Setup(b PortBuilder) error
	Process(ctx context.Context, io IO) error
}

// Continuation reports completion of an asynchronous processing call.
// The function passed in runs on the node's execution context and may use
// the IO; its error has the same meaning as a synchronous Process error.
// Passing nil reports success without further work.
type Continuation func(finish func(io IO) error)

// AsyncProcessor is implemented by processors that complete asynchronously.
// When implemented, ProcessAsync is used instead of Process. Returning an
// error aborts the cycle and the continuation must not be called.
type AsyncProcessor interface {
	Processor
	ProcessAsync(ctx context.Context, io IO, done Continuation) error
}

// Ticker is implemented by source nodes without inputs.
type Ticker interface {
	// CanTick reports whether another tick should be attempted.
	CanTick() bool
	// Tick produces the next cycle. It reports whether anything was written.
	// Errors follow the Process rules; a failed tick sends NoMessage.
	Tick(ctx context.Context, io IO) (bool, error)
}

// ReadinessChecker lets a processor veto firing.
type ReadinessChecker interface {
	CanProcess() bool
}

// MarkerProcessor observes markers that skip Process.
type MarkerProcessor interface {
	ProcessMarker(token *domain.Token)
	// ProcessNoMessageMarkers opts in to NoMessage markers as well.
	ProcessNoMessageMarkers() bool
}

// Resetter is called when the node is reset.
type Resetter interface {
	Reset()
}

// Configurable processors receive the node dictionary before setup.
type Configurable interface {
	Configure(params map[string]any) error
}

// Essential marks a node that must observe end-of-stream markers.
type Essential interface {
	IsEssential() bool
}

// DecodeParams decodes a node dictionary into a typed parameter struct.
func DecodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("failed to decode params: %w", err)
	}
	return nil
}
