package dsl

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

type hclFile struct {
	Name  string     `hcl:"name,optional"`
	Nodes []*hclNode `hcl:"node,block"`
	Links []*hclLink `hcl:"link,block"`
}

type hclNode struct {
	Type     string    `hcl:"type,label"`
	Label    string    `hcl:"label,label"`
	Params   cty.Value `hcl:"params,optional"`
	Mode     string    `hcl:"mode,optional"`
	Group    string    `hcl:"group,optional"`
	Private  bool      `hcl:"private,optional"`
	Disabled bool      `hcl:"disabled,optional"`
}

type hclLink struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// ParseHCL decodes and validates an HCL definition. filename only labels
// diagnostics.
func ParseHCL(filename string, src []byte) (*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	d := &Definition{Name: parsed.Name}
	for _, n := range parsed.Nodes {
		params, err := ctyParams(n.Params)
		if err != nil {
			return nil, fmt.Errorf("node %q params: %w", n.Label, err)
		}
		d.Nodes = append(d.Nodes, NodeDef{
			Label:    n.Label,
			Type:     n.Type,
			Params:   params,
			Mode:     n.Mode,
			Group:    n.Group,
			Private:  n.Private,
			Disabled: n.Disabled,
		})
	}
	for _, l := range parsed.Links {
		d.Links = append(d.Links, LinkDef{From: l.From, To: l.To})
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func ctyParams(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", v.Type().FriendlyName())
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	return native.(map[string]any), nil
}

// ctyToNative converts v to plain Go values. Whole numbers become int so
// parameters read the same as their YAML counterparts.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, el := it.Element()
			native, err := ctyToNative(el)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, el := it.Element()
			native, err := ctyToNative(el)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
}
