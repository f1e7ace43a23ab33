package toolcodeengine

import (
	"context"

	"github.com/jonwraymond/toolcode"
	"github.com/jonwraymond/tooldocs"
	"github.com/jonwraymond/toolindex"
	"github.com/jonwraymond/toolrun"
	enclave "github.com/jonwraymond/enclavejs"
)

// toolsGateway wraps toolcode.Tools to implement enclave.ToolGateway.
type toolsGateway struct {
	tools toolcode.Tools
}

// WrapTools wraps a toolcode.Tools implementation to satisfy enclave.ToolGateway.
// This allows the toolcode.Tools interface to be used as a gateway in enclave.
func WrapTools(tools toolcode.Tools) enclave.ToolGateway {
	return &toolsGateway{tools: tools}
}

// SearchTools implements enclave.ToolGateway by delegating to the wrapped Tools.
func (g *toolsGateway) SearchTools(ctx context.Context, query string, limit int) ([]toolindex.Summary, error) {
	return g.tools.SearchTools(query, limit)
}

// ListNamespaces implements enclave.ToolGateway by delegating to the wrapped Tools.
func (g *toolsGateway) ListNamespaces(ctx context.Context) ([]string, error) {
	return g.tools.ListNamespaces()
}

// DescribeTool implements enclave.ToolGateway by delegating to the wrapped Tools.
func (g *toolsGateway) DescribeTool(ctx context.Context, id string, level tooldocs.DetailLevel) (tooldocs.ToolDoc, error) {
	return g.tools.DescribeTool(id, level)
}

// ListToolExamples implements enclave.ToolGateway by delegating to the wrapped Tools.
func (g *toolsGateway) ListToolExamples(ctx context.Context, id string, maxExamples int) ([]tooldocs.ToolExample, error) {
	return g.tools.ListToolExamples(id, maxExamples)
}

// RunTool implements enclave.ToolGateway by delegating to the wrapped Tools.
func (g *toolsGateway) RunTool(ctx context.Context, id string, args map[string]any) (toolrun.RunResult, error) {
	return g.tools.RunTool(ctx, id, args)
}

// RunChain implements enclave.ToolGateway by delegating to the wrapped Tools.
func (g *toolsGateway) RunChain(ctx context.Context, steps []toolrun.ChainStep) (toolrun.RunResult, []toolrun.StepResult, error) {
	return g.tools.RunChain(ctx, steps)
}
