package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/mallgate/internal/errs"
	"github.com/koustreak/mallgate/internal/logger"
	"github.com/koustreak/mallgate/internal/metrics"
	"github.com/koustreak/mallgate/internal/tool"
)

type fakeDispatcher struct{}

func (fakeDispatcher) Dispatch(_ context.Context, name string, raw json.RawMessage) (*tool.Response, error) {
	switch name {
	case tool.GetMember:
		return tool.ErrorResponse("member lookup failed: boom"), nil
	case tool.GetOrder:
		var args tool.GetOrderArgs
		_ = json.Unmarshal(raw, &args)
		return tool.NotFoundResponse("order not found: " + args.OrderID), nil
	case tool.ListTables:
		return tool.TextResponse("tables in schema ec_ectlocal:\n\norders"), nil
	default:
		return nil, errs.Newf(errs.ErrKindUnknownTool, "unknown tool: %s", name)
	}
}

type fakeBackend struct {
	pingErr   error
	shutdowns atomic.Int32
}

func (b *fakeBackend) Ping(context.Context) error { return b.pingErr }
func (b *fakeBackend) Shutdown()                  { b.shutdowns.Add(1) }

func newTestServer(t *testing.T, cfg Config, backend *fakeBackend) *Server {
	t.Helper()
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	s, err := New(cfg, fakeDispatcher{}, backend, logger.Nop())
	require.NoError(t, err)
	return s
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcp.NewInMemoryTransports()

	ss, err := s.MCP().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNew_UnknownTransport(t *testing.T) {
	_, err := New(Config{Transport: "sse"}, fakeDispatcher{}, &fakeBackend{}, nil)
	assert.True(t, errs.IsConfiguration(err))
}

func TestServer_ListTools(t *testing.T) {
	cs := connect(t, newTestServer(t, Config{}, &fakeBackend{}))

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tl := range res.Tools {
		names = append(names, tl.Name)
	}
	assert.ElementsMatch(t, []string{
		tool.ExecuteQuery, tool.GetTableStructure, tool.ListTables,
		tool.GetOrder, tool.GetOrderDetail, tool.GetMember,
	}, names)
}

func TestServer_CallTool(t *testing.T) {
	cs := connect(t, newTestServer(t, Config{}, &fakeBackend{}))
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: tool.ListTables, Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "tables in schema ec_ectlocal:\n\norders", resultText(t, res))

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: tool.GetOrder, Arguments: map[string]any{"order_id": "X-1"}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "order not found: X-1", resultText(t, res))

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: tool.GetMember, Arguments: map[string]any{"member_id": "m"}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "member lookup failed: boom", resultText(t, res))
}

func TestServer_UnknownToolIsProtocolError(t *testing.T) {
	cs := connect(t, newTestServer(t, Config{}, &fakeBackend{}))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "drop_database", Arguments: map[string]any{}})
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestServer_CallToolPassesDispatchErrors(t *testing.T) {
	s := newTestServer(t, Config{}, &fakeBackend{})

	res, err := s.callTool(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: "drop_database"},
	})
	assert.Nil(t, res)
	assert.True(t, errs.IsUnknownTool(err))
}

func TestRouter_Probes(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(newTestServer(t, Config{}, backend).Router(false))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)

	backend.pingErr = errors.New("connection refused")
	code, body = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "database unavailable")

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "mallgate_http_requests_total")

	code, _ = get("/mcp")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_UnmatchedPathsShareOneSeries(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, Config{}, &fakeBackend{}).Router(false))
	defer srv.Close()

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))
	for _, path := range []string{"/.env", "/wp-login.php", "/admin/config", "/healthz/extra"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))
	assert.Equal(t, float64(4), after-before)
	for _, path := range []string{"/.env", "/wp-login.php"} {
		assert.Zero(t, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, path, "404")))
	}
}

func TestRun_StdioDrainsBackendOnCancel(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestServer(t, Config{}, backend)
	clientT, serverT := mcp.NewInMemoryTransports()
	s.stdio = serverT

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(context.Background(), clientT, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: tool.ListTables, Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, int32(1), backend.shutdowns.Load())
}

func TestRun_HTTPShutdown(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestServer(t, Config{Transport: TransportHTTP, ListenAddr: "127.0.0.1:0"}, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, int32(1), backend.shutdowns.Load())
}

func TestRun_HTTPListenFailureIsTransportError(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestServer(t, Config{Transport: TransportHTTP, ListenAddr: "localhost"}, backend)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
	assert.Equal(t, int32(1), backend.shutdowns.Load())
}
