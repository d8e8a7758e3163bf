package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

// Redacted replaces masked parameter values.
const Redacted = "***"

type redactMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware masks node parameters whose key matches one of the
// patterns before the snapshot reaches the store. The in-memory snapshot is
// left untouched.
func NewRedactMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactMiddleware) Save(ctx context.Context, name string, snap *domain.GraphSnapshot) error {
	cloned := *snap
	cloned.Nodes = make([]domain.NodeState, len(snap.Nodes))
	for i, n := range snap.Nodes {
		c := n
		c.Dictionary = deepCopyMap(n.Dictionary)
		maskMap(c.Dictionary, m.patterns)
		cloned.Nodes[i] = c
	}
	return m.next.Save(ctx, name, &cloned)
}

func (m *redactMiddleware) Load(ctx context.Context, name string) (*domain.GraphSnapshot, error) {
	return m.next.Load(ctx, name)
}

func (m *redactMiddleware) Delete(ctx context.Context, name string) error {
	return m.next.Delete(ctx, name)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Redacted
				masked = true
				break
			}
		}
		if sub, ok := v.(map[string]any); ok && !masked {
			maskMap(sub, patterns)
		}
	}
}
