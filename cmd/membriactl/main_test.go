package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintJSONHandlesPlainResult(t *testing.T) {
	require.NoError(t, printJSON(json.RawMessage(`{"ok":true}`)))
}

func TestPrintJSONFallsBackOnInvalidJSON(t *testing.T) {
	require.NoError(t, printJSON(json.RawMessage(`not json`)))
}

func TestRPCRequestMarshalsExpectedEnvelope(t *testing.T) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"}
	out, err := json.Marshal(req)
	require.NoError(t, err)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, string(out))
}
