package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/sluice"
	"github.com/aretw0/sluice/pkg/domain"
)

// Options controls what GenerateMermaid draws.
type Options struct {
	// Contexts wraps the nodes of every execution context in a subgraph.
	Contexts bool
	// States styles halted, killed and disabled nodes.
	States bool
}

// GenerateMermaid produces a Mermaid flowchart from node statuses and links.
// It applies semantic styling:
// - Source (no inputs): ((Circle))
// - Sink (no outputs): [/Parallelogram/]
// - Separator: {{Hexagon}}
// - Default: [Rectangle]
// Data links are solid arrows labelled with the ports, event links dotted.
func GenerateMermaid(nodes []domain.NodeStatus, links []sluice.Link, opts Options) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	if opts.Contexts {
		groups, order := byContext(nodes)
		for i, name := range order {
			fmt.Fprintf(&sb, "    subgraph ctx%d[\"%s\"]\n", i, escape(name))
			for _, n := range groups[name] {
				sb.WriteString("    " + shape(n))
			}
			sb.WriteString("    end\n")
		}
	} else {
		for _, n := range nodes {
			sb.WriteString(shape(n))
		}
	}

	for _, l := range links {
		from, fromPort := split(l.From)
		to, toPort := split(l.To)
		if l.State == "" {
			fmt.Fprintf(&sb, "    %s -. \"%s → %s\" .-> %s\n", sanitizeMermaidID(from), fromPort, toPort, sanitizeMermaidID(to))
			continue
		}
		fmt.Fprintf(&sb, "    %s -- \"%s → %s\" --> %s\n", sanitizeMermaidID(from), fromPort, toPort, sanitizeMermaidID(to))
	}

	if opts.States {
		sb.WriteString("\n    %% State Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef halted fill:#ffcdd2,stroke:#b71c1c,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef killed fill:#e0e0e0,stroke:#424242,stroke-dasharray:4,color:#000;\n")
		sb.WriteString("    classDef disabled fill:#fff9c4,stroke:#f57f17,color:#000;\n")
		for _, n := range nodes {
			id := sanitizeMermaidID(n.Label)
			switch {
			case n.Halted:
				fmt.Fprintf(&sb, "    class %s halted;\n", id)
			case n.Killed:
				fmt.Fprintf(&sb, "    class %s killed;\n", id)
			case !n.Enabled:
				fmt.Fprintf(&sb, "    class %s disabled;\n", id)
			}
		}
	}
	return sb.String()
}

func shape(n domain.NodeStatus) string {
	opener, closer := "[", "]"
	switch {
	case len(n.Inputs) == 0:
		opener, closer = "((", "))"
	case len(n.Outputs) == 0:
		opener, closer = "[/", "/]"
	case n.Separator:
		opener, closer = "{{", "}}"
	}
	label := escape(n.Label)
	if n.Type != "" {
		label += "<br/><small>" + escape(n.Type) + "</small>"
	}
	return fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(n.Label), opener, label, closer)
}

// byContext groups nodes by context name. Nodes without a context come last.
func byContext(nodes []domain.NodeStatus) (map[string][]domain.NodeStatus, []string) {
	groups := make(map[string][]domain.NodeStatus)
	for _, n := range nodes {
		name := n.ThreadName
		if name == "" {
			name = "unassigned"
		}
		groups[name] = append(groups[name], n)
	}
	order := make([]string, 0, len(groups))
	for name := range groups {
		order = append(order, name)
	}
	sort.Strings(order)
	return groups, order
}

func split(endpoint string) (string, string) {
	i := strings.LastIndex(endpoint, ".")
	if i < 0 {
		return endpoint, ""
	}
	return endpoint[:i], endpoint[i+1:]
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
