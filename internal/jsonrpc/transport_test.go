package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServeDispatchesRegisteredMethod(t *testing.T) {
	srv := NewServer()
	srv.Register("ping", func(_ context.Context, _ json.RawMessage) (any, *RPCError) {
		return map[string]string{"pong": "ok"}, nil
	})

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Nil(t, resp.Error)
}

func TestServeUnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv := NewServer()
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"nope","params":{}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestServeMalformedLineReturnsInvalidParams(t *testing.T) {
	srv := NewServer()
	in := strings.NewReader(`not json` + "\n")
	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestServeHandlerPanicBecomesInternalError(t *testing.T) {
	srv := NewServer()
	srv.Register("boom", func(_ context.Context, _ json.RawMessage) (any, *RPCError) {
		panic("kaboom")
	})
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"boom","params":{}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), in, &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInternal, resp.Error.Code)
}

func TestServeProcessesMultipleLinesSequentially(t *testing.T) {
	srv := NewServer()
	var order []int
	srv.Register("track", func(_ context.Context, params json.RawMessage) (any, *RPCError) {
		var p struct{ N int }
		_ = json.Unmarshal(params, &p)
		order = append(order, p.N)
		return p.N, nil
	})

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"track","params":{"N":1}}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"track","params":{"N":2}}` + "\n",
	)
	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), in, &out))
	require.Equal(t, []int{1, 2}, order)
}
