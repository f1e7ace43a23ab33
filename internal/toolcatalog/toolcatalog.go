// Package toolcatalog is a minimal in-process implementation of
// toolindex.Index, tooldocs.Store, and toolrun.Runner, so that
// gateway/direct.Gateway has a concrete, tool-less-broker target to
// delegate to — useful for cmd/enclaved's default configuration and for
// tests that want real (if small) tool surfaces instead of mocks.
package toolcatalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jonwraymond/tooldocs"
	"github.com/jonwraymond/toolindex"
	"github.com/jonwraymond/toolrun"
)

// Handler implements one tool's behavior.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered entry: its catalog metadata plus its handler.
type Tool struct {
	ID               string
	Name             string
	Namespace        string
	ShortDescription string
	Tags             []string
	Notes            string
	Examples         []tooldocs.ToolExample
	Handler          Handler
}

// Catalog is a static, in-memory registry of Tools. It implements
// toolindex.Index, tooldocs.Store, and toolrun.Runner directly, so one
// value can back all three Config fields of gateway/direct.Config.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New builds an empty Catalog.
func New() *Catalog {
	return &Catalog{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (c *Catalog) Register(t Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[t.ID] = t
}

// Search implements toolindex.Index: a case-insensitive substring match
// over ID, Name, and Tags.
func (c *Catalog) Search(query string, limit int) ([]toolindex.Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var matches []toolindex.Summary
	for _, t := range sortedTools(c.tools) {
		if q == "" || matchesQuery(t, q) {
			matches = append(matches, toolindex.Summary{
				ID:               t.ID,
				Name:             t.Name,
				Namespace:        t.Namespace,
				ShortDescription: t.ShortDescription,
				Tags:             t.Tags,
			})
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func matchesQuery(t Tool, q string) bool {
	if strings.Contains(strings.ToLower(t.ID), q) || strings.Contains(strings.ToLower(t.Name), q) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// ListNamespaces implements toolindex.Index.
func (c *Catalog) ListNamespaces() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, t := range c.tools {
		if t.Namespace != "" && !seen[t.Namespace] {
			seen[t.Namespace] = true
			out = append(out, t.Namespace)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DescribeTool implements tooldocs.Store.
func (c *Catalog) DescribeTool(id string, level tooldocs.DetailLevel) (tooldocs.ToolDoc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tools[id]
	if !ok {
		return tooldocs.ToolDoc{}, fmt.Errorf("toolcatalog: unknown tool %q", id)
	}
	doc := tooldocs.ToolDoc{Summary: t.ShortDescription}
	if level != tooldocs.DetailSummary {
		doc.Notes = t.Notes
	}
	return doc, nil
}

// ListExamples implements tooldocs.Store.
func (c *Catalog) ListExamples(id string, max int) ([]tooldocs.ToolExample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tools[id]
	if !ok {
		return nil, fmt.Errorf("toolcatalog: unknown tool %q", id)
	}
	examples := t.Examples
	if max > 0 && len(examples) > max {
		examples = examples[:max]
	}
	return examples, nil
}

// Run implements toolrun.Runner.
func (c *Catalog) Run(ctx context.Context, id string, args map[string]any) (toolrun.RunResult, error) {
	c.mu.RLock()
	t, ok := c.tools[id]
	c.mu.RUnlock()
	if !ok {
		return toolrun.RunResult{}, fmt.Errorf("toolcatalog: unknown tool %q", id)
	}
	out, err := t.Handler(ctx, args)
	if err != nil {
		return toolrun.RunResult{}, err
	}
	return toolrun.RunResult{Structured: out}, nil
}

// RunChain implements toolrun.Runner by running each step's tool in order,
// threading the previous step's result into the next when UsePrevious is set.
func (c *Catalog) RunChain(ctx context.Context, steps []toolrun.ChainStep) (toolrun.RunResult, []toolrun.StepResult, error) {
	if len(steps) == 0 {
		return toolrun.RunResult{}, nil, nil
	}

	var last toolrun.RunResult
	stepResults := make([]toolrun.StepResult, 0, len(steps))
	for _, step := range steps {
		args := step.Args
		if step.UsePrevious {
			if args == nil {
				args = map[string]any{}
			}
			args["previous"] = last.Structured
		}
		res, err := c.Run(ctx, step.ToolID, args)
		sr := toolrun.StepResult{ToolID: step.ToolID, Result: res}
		if err != nil {
			sr.Err = err
			stepResults = append(stepResults, sr)
			return last, stepResults, err
		}
		stepResults = append(stepResults, sr)
		last = res
	}
	return last, stepResults, nil
}

func sortedTools(tools map[string]Tool) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
