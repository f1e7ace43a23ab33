package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransform_WrapsInAsyncMain(t *testing.T) {
	res, err := Transform("return 1;")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Source, "async function __ag_main() {"))
	require.Contains(t, res.Source, "return 1;")
}

func TestTransform_RewritesCallToolCallSite(t *testing.T) {
	res, err := Transform(`callTool("search", {q:1});`)
	require.NoError(t, err)
	require.Contains(t, res.Source, "__safe_callTool(\"search\"")
}

func TestTransform_InjectsLoopCheckpoint(t *testing.T) {
	res, err := Transform("for (var i = 0; i < 10; i++) { callTool('x', {}); }")
	require.NoError(t, err)
	require.Contains(t, res.Source, "__safe_for();")
}

func TestTransform_WrapsNonBlockLoopBody(t *testing.T) {
	res, err := Transform("while (true) doSomething();")
	require.NoError(t, err)
	require.Contains(t, res.Source, "__safe_while();")
}

func TestTransform_DoesNotRewriteShadowedCallToolDeclaration(t *testing.T) {
	res, err := Transform("function callTool(a,b) { return a; }")
	require.NoError(t, err)
	require.NotContains(t, res.Source, "__safe_callTool")
}
