package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

// Relay copies its input to its output.
type Relay struct{}

func (Relay) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in"})
	b.AddOutput(domain.PortSpec{Name: "out"})
	return nil
}

func (Relay) Process(_ context.Context, io ports.IO) error {
	return io.Write("out", io.Value("in"))
}

// Scale multiplies a number by Factor.
type Scale struct {
	params struct {
		Factor float64 `mapstructure:"factor"`
	}
}

func (s *Scale) Configure(params map[string]any) error {
	s.params.Factor = 1
	return ports.DecodeParams(params, &s.params)
}

func (s *Scale) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in", Type: "number"})
	b.AddOutput(domain.PortSpec{Name: "out", Type: "float64"})
	return nil
}

func (s *Scale) Process(_ context.Context, io ports.IO) error {
	v, err := toFloat(io.Value("in"))
	if err != nil {
		return fmt.Errorf("scale: %w", err)
	}
	return io.Write("out", v*s.params.Factor)
}

// Sum adds a and the optional b. An unconnected or empty b counts as zero.
type Sum struct{}

func (Sum) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "a", Type: "number"})
	b.AddInput(domain.PortSpec{Name: "b", Type: "number", Optional: true})
	b.AddOutput(domain.PortSpec{Name: "out", Type: "float64"})
	return nil
}

func (Sum) Process(_ context.Context, io ports.IO) error {
	a, err := toFloat(io.Value("a"))
	if err != nil {
		return fmt.Errorf("sum: a: %w", err)
	}
	var b float64
	if v := io.Value("b"); v != nil {
		if b, err = toFloat(v); err != nil {
			return fmt.Errorf("sum: b: %w", err)
		}
	}
	return io.Write("out", a+b)
}

// Filter forwards multiples of Modulo and commits nothing otherwise, so
// downstream receives NoMessage.
type Filter struct {
	params struct {
		Modulo int `mapstructure:"modulo"`
	}
}

func (f *Filter) Configure(params map[string]any) error {
	f.params.Modulo = 2
	if err := ports.DecodeParams(params, &f.params); err != nil {
		return err
	}
	if f.params.Modulo == 0 {
		return fmt.Errorf("filter modulo must not be zero")
	}
	return nil
}

func (f *Filter) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in", Type: "number"})
	b.AddOutput(domain.PortSpec{Name: "out", Type: "number"})
	return nil
}

func (f *Filter) Process(_ context.Context, io ports.IO) error {
	in := io.Value("in")
	v, err := toFloat(in)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if int64(v)%int64(f.params.Modulo) != 0 {
		return nil
	}
	return io.Write("out", in)
}

// Join concatenates the fragments of a multi-part string message.
type Join struct {
	params struct {
		Separator string `mapstructure:"separator"`
	}
}

func (j *Join) Configure(params map[string]any) error {
	return ports.DecodeParams(params, &j.params)
}

func (j *Join) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in", Type: "string", Dynamic: true})
	b.AddOutput(domain.PortSpec{Name: "out", Type: "string"})
	return nil
}

func (j *Join) Process(_ context.Context, io ports.IO) error {
	v := io.Value("in")
	composite, ok := v.(domain.Composite)
	if !ok {
		return io.Write("out", fmt.Sprint(v))
	}
	parts := make([]string, 0, len(composite.Parts))
	for _, p := range composite.Payloads() {
		parts = append(parts, fmt.Sprint(p))
	}
	return io.Write("out", strings.Join(parts, j.params.Separator))
}

// Delay forwards its input after Duration without blocking its context.
type Delay struct {
	params struct {
		Duration time.Duration `mapstructure:"duration"`
	}
}

func (d *Delay) Configure(params map[string]any) error {
	d.params.Duration = 10 * time.Millisecond
	dec := map[string]any{}
	for k, v := range params {
		dec[k] = v
	}
	if s, ok := dec["duration"].(string); ok {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("delay: %w", err)
		}
		dec["duration"] = parsed
	}
	return ports.DecodeParams(dec, &d.params)
}

func (d *Delay) Setup(b ports.PortBuilder) error {
	b.AddInput(domain.PortSpec{Name: "in"})
	b.AddOutput(domain.PortSpec{Name: "out"})
	return nil
}

func (d *Delay) Process(context.Context, ports.IO) error {
	return fmt.Errorf("delay only runs asynchronously")
}

func (d *Delay) ProcessAsync(ctx context.Context, io ports.IO, done ports.Continuation) error {
	v := io.Value("in")
	go func() {
		timer := time.NewTimer(d.params.Duration)
		defer timer.Stop()
		select {
		case <-timer.C:
			done(func(io ports.IO) error { return io.Write("out", v) })
		case <-ctx.Done():
			done(func(ports.IO) error { return ctx.Err() })
		}
	}()
	return nil
}
