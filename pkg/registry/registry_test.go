package registry

import (
	"context"
	"testing"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noop struct{ id int }

func (noop) Setup(ports.PortBuilder) error           { return nil }
func (noop) Process(context.Context, ports.IO) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	n := 0
	r.Register("noop", func() ports.Processor {
		n++
		return &noop{id: n}
	})

	p1, err := r.New("noop")
	require.NoError(t, err)
	p2, err := r.New("noop")
	require.NoError(t, err)
	assert.NotSame(t, p1, p2, "each call creates a fresh instance")

	_, err = r.New("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownNodeType)

	r.Register("another", func() ports.Processor { return &noop{} })
	assert.Equal(t, []string{"another", "noop"}, r.Types())
	assert.True(t, r.Has("noop"))
	assert.False(t, r.Has("missing"))
}
