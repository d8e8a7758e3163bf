package nodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

// Counter emits From, From+Step, ... up to To (inclusive) and then, unless
// disabled, a single end-of-sequence marker.
type Counter struct {
	params struct {
		From int  `mapstructure:"from"`
		To   int  `mapstructure:"to"`
		Step int  `mapstructure:"step"`
		EOS  bool `mapstructure:"eos"`
	}

	mu       sync.Mutex
	next     int
	finished bool
}

func (c *Counter) Configure(params map[string]any) error {
	c.params.From, c.params.To, c.params.Step, c.params.EOS = 1, 10, 1, true
	if err := ports.DecodeParams(params, &c.params); err != nil {
		return err
	}
	if c.params.Step <= 0 {
		return fmt.Errorf("counter step must be positive, got %d", c.params.Step)
	}
	c.next = c.params.From
	return nil
}

func (c *Counter) Setup(b ports.PortBuilder) error {
	b.AddOutput(domain.PortSpec{Name: "out", Type: "int"})
	return nil
}

func (c *Counter) Process(context.Context, ports.IO) error { return nil }

func (c *Counter) CanTick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.finished
}

func (c *Counter) Tick(_ context.Context, io ports.IO) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next > c.params.To {
		c.finished = true
		if !c.params.EOS {
			return false, nil
		}
		return true, io.WriteToken("out", domain.EndOfSequence())
	}
	v := c.next
	c.next += c.params.Step
	return true, io.Write("out", v)
}

// Reset restarts the sequence.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.params.From
	c.finished = false
}

// Chunks emits Text as one multi-part message of Size-rune fragments, then an
// end-of-sequence marker.
type Chunks struct {
	params struct {
		Text string `mapstructure:"text"`
		Size int    `mapstructure:"size"`
	}

	mu      sync.Mutex
	pending []string
	sent    int
	done    bool
}

func (c *Chunks) Configure(params map[string]any) error {
	c.params.Size = 4
	if err := ports.DecodeParams(params, &c.params); err != nil {
		return err
	}
	if c.params.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.params.Size)
	}
	c.pending = split(c.params.Text, c.params.Size)
	return nil
}

func split(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	return append(out, string(runes))
}

func (c *Chunks) Setup(b ports.PortBuilder) error {
	b.AddOutput(domain.PortSpec{Name: "out", Type: "string"})
	return nil
}

func (c *Chunks) Process(context.Context, ports.IO) error { return nil }

func (c *Chunks) CanTick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.done
}

func (c *Chunks) Tick(_ context.Context, io ports.IO) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == len(c.pending) {
		c.done = true
		return true, io.WriteToken("out", domain.EndOfSequence())
	}
	part := c.pending[c.sent]
	c.sent++
	if err := io.Write("out", part); err != nil {
		return false, err
	}
	return true, io.SetMultipart("out", true, c.sent == len(c.pending))
}

func (c *Chunks) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = 0
	c.done = false
}
