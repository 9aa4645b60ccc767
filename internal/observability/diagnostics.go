package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DiagnosticsServer is the operational sidecar for the long-lived modes. An
// LSP or MCP server talks to its client over stdio, so supervision has to go
// elsewhere: this server answers /healthz and /readyz for supervisors and
// /metrics for Prometheus scrapes. One-shot CLI runs never start it.
type DiagnosticsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewDiagnosticsServer binds addr and starts serving. The server is ready as
// soon as construction succeeds; the rule registry and runner are already
// built by the time the LSP/MCP commands reach this point.
func NewDiagnosticsServer(addr string) (*DiagnosticsServer, error) {
	scrape, err := newScrapeHandler()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", statusHandler())
	mux.Handle("/readyz", statusHandler())
	mux.Handle("/metrics", scrape)

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Warn("diagnostics server stopped", "error", serveErr)
		}
	}()

	return &DiagnosticsServer{server: srv, listener: listener}, nil
}

// Addr returns the bound address, with port 0 resolved to the real port.
func (d *DiagnosticsServer) Addr() string {
	return d.listener.Addr().String()
}

// Close gracefully shuts down the diagnostics server.
func (d *DiagnosticsServer) Close() error {
	err := d.server.Shutdown(context.Background())
	if err != nil {
		return fmt.Errorf("shutdown diagnostics server: %w", err)
	}

	return nil
}

// statusHandler reports a healthy process. Both check endpoints share it: a
// stdio server that can answer HTTP at all is both alive and ready.
func statusHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"status":"ok"}`))
	})
}

// newScrapeHandler bridges OTel instruments to a Prometheus scrape endpoint.
// The registry is private to this server so repeated construction in tests
// never trips duplicate-collector registration.
func newScrapeHandler() (http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	// Reading through a MeterProvider is what makes OTel instruments show up
	// in the scrape output.
	_ = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
