// Package tools exposes the agent's tool catalogue to the summarizer. Tools
// are only described to the model, never invoked during summarization.
package tools

import (
	"encoding/json"
	"sort"

	geptools "github.com/go-go-golems/geppetto/pkg/inference/tools"
	"github.com/pkg/errors"

	"github.com/go-go-golems/roundup/pkg/llm"
)

// Tool is the description of one invocable tool.
type Tool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Registry returns the current tool set.
type Registry interface {
	Tools() []Tool
}

// Static is a fixed tool list.
type Static []Tool

func (s Static) Tools() []Tool { return append([]Tool(nil), s...) }

// Schemas converts registry tools to model-call schemas.
func Schemas(r Registry) []llm.ToolSchema {
	if r == nil {
		return nil
	}
	list := r.Tools()
	ret := make([]llm.ToolSchema, 0, len(list))
	for _, t := range list {
		ret = append(ret, llm.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return ret
}

// List returns the registry's tools, tolerating a nil registry.
func List(r Registry) []Tool {
	if r == nil {
		return []Tool{}
	}
	ret := r.Tools()
	if ret == nil {
		return []Tool{}
	}
	return ret
}

// Geppetto adapts a geppetto tool registry.
type Geppetto struct {
	reg geptools.ToolRegistry
}

var _ Registry = (*Geppetto)(nil)

func FromGeppetto(reg geptools.ToolRegistry) *Geppetto {
	return &Geppetto{reg: reg}
}

func (g *Geppetto) Tools() []Tool {
	if g == nil || g.reg == nil {
		return nil
	}
	defs := g.reg.ListTools()
	ret := make([]Tool, 0, len(defs))
	for _, d := range defs {
		params, err := schemaToMap(d.Parameters)
		if err != nil {
			// keep the tool, the description alone is still useful context
			params = nil
		}
		ret = append(ret, Tool{Name: d.Name, Description: d.Description, Parameters: params})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

func schemaToMap(schema any) (map[string]any, error) {
	if schema == nil {
		return nil, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tool schema")
	}
	ret := map[string]any{}
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, errors.Wrap(err, "unmarshal tool schema")
	}
	return ret, nil
}
