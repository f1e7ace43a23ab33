package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	enclave "github.com/jonwraymond/enclavejs"
	"github.com/jonwraymond/tooldocs"
	"github.com/jonwraymond/toolindex"
	"github.com/jonwraymond/toolrun"
)

// mockGateway implements enclave.ToolGateway for contract testing.
type mockGateway struct {
	runResult toolrun.RunResult
	runErr    error
}

func (m *mockGateway) SearchTools(context.Context, string, int) ([]toolindex.Summary, error) {
	return nil, nil
}

func (m *mockGateway) ListNamespaces(context.Context) ([]string, error) { return nil, nil }

func (m *mockGateway) DescribeTool(context.Context, string, tooldocs.DetailLevel) (tooldocs.ToolDoc, error) {
	return tooldocs.ToolDoc{}, enclave.ErrMissingCode
}

func (m *mockGateway) ListToolExamples(context.Context, string, int) ([]tooldocs.ToolExample, error) {
	return nil, nil
}

func (m *mockGateway) RunTool(context.Context, string, map[string]any) (toolrun.RunResult, error) {
	if m.runErr != nil {
		return toolrun.RunResult{}, m.runErr
	}
	return m.runResult, nil
}

func (m *mockGateway) RunChain(context.Context, []toolrun.ChainStep) (toolrun.RunResult, []toolrun.StepResult, error) {
	return toolrun.RunResult{}, nil, nil
}

func TestBackendImplementsInterface(t *testing.T) {
	var _ enclave.Backend = (*Backend)(nil)
}

func TestBackendKind(t *testing.T) {
	require.Equal(t, BackendKindGoja, NewBackend().Kind())
}

func TestBackendInvokesToolThroughGateway(t *testing.T) {
	b := NewBackend()
	gw := &mockGateway{runResult: toolrun.RunResult{Structured: map[string]any{"ok": true}}}

	req := enclave.ExecuteRequest{
		Code:    `const r = await callTool("util:echo", {}); return r.ok;`,
		Gateway: gw,
	}

	result, err := b.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, true, result.Value)
	require.Len(t, result.ToolCalls, 1)
}

func TestBackendContractCompliance(t *testing.T) {
	enclave.RunBackendContractTests(t, enclave.BackendContract{
		NewBackend: func() enclave.Backend {
			return NewBackend()
		},
		NewGateway: func() enclave.ToolGateway {
			return &mockGateway{}
		},
		ExpectedKind: BackendKindGoja,
	})
}
