package observability_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/treelint/internal/observability"
)

func startDiagnostics(t *testing.T) *observability.DiagnosticsServer {
	t.Helper()

	srv, err := observability.NewDiagnosticsServer("127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, srv.Close()) })

	return srv
}

func getBody(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp.StatusCode, string(body), resp.Header
}

func TestDiagnosticsServerHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := startDiagnostics(t)
	base := "http://" + srv.Addr()

	for _, path := range []string{"/healthz", "/readyz"} {
		status, body, header := getBody(t, base+path)

		assert.Equal(t, http.StatusOK, status, "endpoint %s", path)
		assert.JSONEq(t, `{"status":"ok"}`, body, "endpoint %s", path)
		assert.Equal(t, "application/json", header.Get("Content-Type"), "endpoint %s", path)
	}
}

func TestDiagnosticsServerServesScrape(t *testing.T) {
	t.Parallel()

	srv := startDiagnostics(t)

	status, body, _ := getBody(t, "http://"+srv.Addr()+"/metrics")

	assert.Equal(t, http.StatusOK, status)

	// The OTel prometheus bridge always emits target_info for the resource.
	assert.Contains(t, body, "target_info")
}

func TestDiagnosticsServerAddrResolvesPort(t *testing.T) {
	t.Parallel()

	srv := startDiagnostics(t)

	// Port 0 should be replaced with the actual bound port.
	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)
}

func TestDiagnosticsServerInvalidAddr(t *testing.T) {
	t.Parallel()

	_, err := observability.NewDiagnosticsServer("definitely-not-an-addr")
	require.Error(t, err)
}
