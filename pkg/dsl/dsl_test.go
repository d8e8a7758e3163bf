package dsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doublerYAML = `
name: doubler
nodes:
  - label: numbers
    type: counter
    params: {to: 5}
  - label: double
    type: scale
    params: {factor: 2}
    mode: pipelining
    group: io
  - label: sink
    type: collector
links:
  - {from: numbers.out, to: double.in}
  - {from: double.out, to: sink.in}
`

const doublerHCL = `
name = "doubler"

node "counter" "numbers" {
  params = { to = 5 }
}

node "scale" "double" {
  params = { factor = 2 }
  mode   = "pipelining"
  group  = "io"
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
`

func doubler(t *testing.T) *Definition {
	t.Helper()
	def, err := New("doubler").
		Node("numbers", "counter").Param("to", 5).Connect("out", "double.in").
		Node("double", "scale").Param("factor", 2).Pipelining().Group("io").Connect("out", "sink.in").
		Node("sink", "collector").
		Build()
	require.NoError(t, err)
	return def
}

func TestFormatsAgree(t *testing.T) {
	built := doubler(t)

	fromYAML, err := ParseYAML([]byte(doublerYAML))
	require.NoError(t, err)
	assert.Equal(t, built, fromYAML)

	fromHCL, err := ParseHCL("doubler.hcl", []byte(doublerHCL))
	require.NoError(t, err)
	assert.Equal(t, built, fromHCL)
}

func TestNodeDef_ExecutionMode(t *testing.T) {
	def := doubler(t)
	n, ok := def.Node("double")
	require.True(t, ok)
	mode, err := n.ExecutionMode()
	require.NoError(t, err)
	assert.Equal(t, domain.Pipelining, mode)

	n, _ = def.Node("sink")
	mode, err = n.ExecutionMode()
	require.NoError(t, err)
	assert.Equal(t, domain.Sequential, mode)
}

func TestHCLParamTypes(t *testing.T) {
	src := `
node "relay" "r" {
  params = {
    count  = 3
    ratio  = 0.5
    name   = "x"
    on     = true
    tags   = ["a", "b"]
    nested = { depth = 2 }
  }
  private  = true
  disabled = true
}
`
	def, err := ParseHCL("types.hcl", []byte(src))
	require.NoError(t, err)
	require.Len(t, def.Nodes, 1)
	n := def.Nodes[0]
	assert.Equal(t, map[string]any{
		"count":  3,
		"ratio":  0.5,
		"name":   "x",
		"on":     true,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"depth": 2},
	}, n.Params)
	assert.True(t, n.Private)
	assert.True(t, n.Disabled)
}

func TestHCLErrors(t *testing.T) {
	_, err := ParseHCL("broken.hcl", []byte(`node "counter" {`))
	assert.Error(t, err)

	_, err = ParseHCL("params.hcl", []byte(`node "counter" "c" { params = 3 }`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"missing label", Definition{Nodes: []NodeDef{{Type: "relay"}}}},
		{"missing type", Definition{Nodes: []NodeDef{{Label: "a"}}}},
		{"dotted label", Definition{Nodes: []NodeDef{{Label: "a.b", Type: "relay"}}}},
		{"duplicate label", Definition{Nodes: []NodeDef{{Label: "a", Type: "relay"}, {Label: "a", Type: "relay"}}}},
		{"bad mode", Definition{Nodes: []NodeDef{{Label: "a", Type: "relay", Mode: "eager"}}}},
		{"private and grouped", Definition{Nodes: []NodeDef{{Label: "a", Type: "relay", Private: true, Group: "g"}}}},
		{"unknown link node", Definition{
			Nodes: []NodeDef{{Label: "a", Type: "relay"}},
			Links: []LinkDef{{From: "a.out", To: "b.in"}},
		}},
		{"malformed endpoint", Definition{
			Nodes: []NodeDef{{Label: "a", Type: "relay"}},
			Links: []LinkDef{{From: "a", To: "a.in"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.def.Validate(), ErrInvalidDefinition)
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("my-node.out")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Label: "my-node", Port: "out"}, ep)
	assert.Equal(t, "my-node.out", ep.String())

	for _, bad := range []string{"", "node", ".out", "node."} {
		_, err := ParseEndpoint(bad)
		assert.ErrorIs(t, err, ErrInvalidDefinition, bad)
	}
}

func TestBuilder_ReusesLabelsAndIsolatesResults(t *testing.T) {
	b := New("g")
	first := b.Node("a", "relay")
	assert.Same(t, first, b.Node("a", "scale"))

	first.Param("factor", 1)
	def, err := b.Build()
	require.NoError(t, err)

	first.Param("factor", 2)
	assert.Equal(t, 1, def.Nodes[0].Params["factor"])
	assert.Equal(t, "relay", def.Nodes[0].Type)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "doubler.yaml")
	hclPath := filepath.Join(dir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(yamlPath, []byte(doublerYAML), 0o644))
	require.NoError(t, os.WriteFile(hclPath, []byte(`node "relay" "r" {}`), 0o644))

	def, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "doubler", def.Name)
	assert.Len(t, def.Nodes, 3)

	def, err = LoadFile(hclPath)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", def.Name, "name defaults to the file name")

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
