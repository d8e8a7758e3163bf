package dsl

// Builder manages the graph construction.
type Builder struct {
	def   Definition
	nodes map[string]*NodeBuilder
}

// New creates a new graph builder.
func New(name string) *Builder {
	return &Builder{
		def:   Definition{Name: name},
		nodes: make(map[string]*NodeBuilder),
	}
}

// Node adds a node of the given type.
// If the label already exists, it returns the existing builder.
func (b *Builder) Node(label, nodeType string) *NodeBuilder {
	if nb, ok := b.nodes[label]; ok {
		return nb
	}
	b.def.Nodes = append(b.def.Nodes, NodeDef{Label: label, Type: nodeType})
	nb := &NodeBuilder{index: len(b.def.Nodes) - 1, builder: b}
	b.nodes[label] = nb
	return nb
}

// Link connects two "label.port" endpoints.
func (b *Builder) Link(from, to string) *Builder {
	b.def.Links = append(b.def.Links, LinkDef{From: from, To: to})
	return b
}

// Build validates and returns the definition. The builder can keep being
// used; later changes do not leak into the returned value.
func (b *Builder) Build() (*Definition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	out := Definition{Name: b.def.Name, Links: append([]LinkDef(nil), b.def.Links...)}
	for _, n := range b.def.Nodes {
		if n.Params != nil {
			params := make(map[string]any, len(n.Params))
			for k, v := range n.Params {
				params[k] = v
			}
			n.Params = params
		}
		out.Nodes = append(out.Nodes, n)
	}
	return &out, nil
}

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	index   int
	builder *Builder
}

func (n *NodeBuilder) def() *NodeDef { return &n.builder.def.Nodes[n.index] }

// Param sets one node parameter.
func (n *NodeBuilder) Param(key string, value any) *NodeBuilder {
	d := n.def()
	if d.Params == nil {
		d.Params = make(map[string]any)
	}
	d.Params[key] = value
	return n
}

// Params merges params into the node parameters.
func (n *NodeBuilder) Params(params map[string]any) *NodeBuilder {
	for k, v := range params {
		n.Param(k, v)
	}
	return n
}

// Mode sets the execution mode by name.
func (n *NodeBuilder) Mode(mode string) *NodeBuilder {
	n.def().Mode = mode
	return n
}

// Pipelining is shorthand for Mode("pipelining").
func (n *NodeBuilder) Pipelining() *NodeBuilder { return n.Mode("pipelining") }

// Group places the node in the named custom thread group.
func (n *NodeBuilder) Group(name string) *NodeBuilder {
	n.def().Group = name
	return n
}

// Private gives the node its own context.
func (n *NodeBuilder) Private() *NodeBuilder {
	n.def().Private = true
	return n
}

// Disabled starts the node with processing disabled.
func (n *NodeBuilder) Disabled() *NodeBuilder {
	n.def().Disabled = true
	return n
}

// Connect links this node's output to a "label.port" input.
func (n *NodeBuilder) Connect(output, to string) *NodeBuilder {
	n.builder.Link(n.def().Label+"."+output, to)
	return n
}

// Node continues with another node.
func (n *NodeBuilder) Node(label, nodeType string) *NodeBuilder {
	return n.builder.Node(label, nodeType)
}

// Build finishes the enclosing builder.
func (n *NodeBuilder) Build() (*Definition, error) { return n.builder.Build() }
