package nodes

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

// Collector records every payload it receives. It must observe end of stream,
// so separators upstream never swallow markers on its behalf.
type Collector struct {
	mu     sync.Mutex
	values []any
	ended  bool
	done   chan struct{}
}

func (c *Collector) Setup(b ports.PortBuilder) error {
	c.done = make(chan struct{})
	b.AddInput(domain.PortSpec{Name: "in"})
	return nil
}

func (c *Collector) Process(_ context.Context, io ports.IO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, io.Value("in"))
	return nil
}

func (c *Collector) IsEssential() bool { return true }

func (c *Collector) ProcessMarker(t *domain.Token) {
	if !t.IsEndOfSequence() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ended {
		c.ended = true
		close(c.done)
	}
}

func (c *Collector) ProcessNoMessageMarkers() bool { return false }

// Values returns a copy of everything collected.
func (c *Collector) Values() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.values...)
}

// Done is closed when end of sequence arrives.
func (c *Collector) Done() <-chan struct{} { return c.done }

// Reset forgets collected values. An ended stream stays ended.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = nil
}

// Printer writes each payload on its own line, prefixed with Prefix.
type Printer struct {
	params struct {
		Prefix string `mapstructure:"prefix"`
	}
	out io.Writer
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w}
}

func (p *Printer) Configure(params map[string]any) error {
	return ports.DecodeParams(params, &p.params)
}

func (p *Printer) Setup(b ports.PortBuilder) error {
	if p.out == nil {
		p.out = os.Stdout
	}
	b.AddInput(domain.PortSpec{Name: "in"})
	return nil
}

func (p *Printer) Process(_ context.Context, io ports.IO) error {
	v := io.Value("in")
	io.Logger().Debug("printing value", "value", v)
	_, err := fmt.Fprintf(p.out, "%s%v\n", p.params.Prefix, v)
	return err
}
