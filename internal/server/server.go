// Package server exposes the tool dispatcher over the Model Context
// Protocol, on stdio or on streamable HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koustreak/mallgate/internal/errs"
	"github.com/koustreak/mallgate/internal/logger"
	"github.com/koustreak/mallgate/internal/tool"
)

const implementationName = "mallgate"

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config controls how the server is exposed.
type Config struct {
	Transport       string
	ListenAddr      string // streamable HTTP listener, http transport only
	AdminAddr       string // /healthz, /readyz, /metrics in stdio mode; empty disables
	ShutdownTimeout time.Duration
	Version         string
}

// Dispatcher routes one tool call.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, raw json.RawMessage) (*tool.Response, error)
}

// Backend is the database side the server owns the lifecycle of.
type Backend interface {
	Ping(ctx context.Context) error
	Shutdown()
}

// Server is the protocol adapter in front of a Dispatcher.
type Server struct {
	cfg        Config
	mcp        *mcp.Server
	dispatcher Dispatcher
	backend    Backend
	log        *logger.Logger

	// stdio stream, replaced in tests
	stdio mcp.Transport
}

// New registers every catalog tool on a fresh MCP server.
func New(cfg Config, d Dispatcher, backend Backend, log *logger.Logger) (*Server, error) {
	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return nil, errs.Newf(errs.ErrKindConfiguration, "unknown transport %q", cfg.Transport)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	catalog, err := tool.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to build tool catalog: %w", err)
	}

	s := &Server{
		cfg: cfg,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    implementationName,
			Version: cfg.Version,
		}, nil),
		dispatcher: d,
		backend:    backend,
		log:        log.With().Str("component", "server").Str("transport", cfg.Transport).Logger(),
		stdio:      &mcp.StdioTransport{},
	}

	for _, desc := range catalog {
		s.mcp.AddTool(&mcp.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		}, s.callTool)
	}
	return s, nil
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

func (s *Server) callTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.dispatcher.Dispatch(ctx, req.Params.Name, req.Params.Arguments)
	if err != nil {
		// Unknown tool: a protocol error, not an error-flagged result.
		return nil, err
	}
	return toResult(resp), nil
}

func toResult(resp *tool.Response) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(resp.Content))
	for _, c := range resp.Content {
		content = append(content, &mcp.TextContent{Text: c.Text})
	}
	return &mcp.CallToolResult{Content: content, IsError: resp.IsError}
}

// Run serves until ctx is cancelled or the transport fails. On
// cancellation the backend is drained first and the transport closed
// after. A transport failure is returned as a Transport error.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Transport == TransportHTTP {
		return s.runHTTP(ctx)
	}
	return s.runStdio(ctx)
}

func (s *Server) runStdio(ctx context.Context) error {
	var admin *http.Server
	adminErr := make(chan error, 1)
	if s.cfg.AdminAddr != "" {
		admin = s.httpServer(s.cfg.AdminAddr, s.Router(false))
		go s.serve(admin, adminErr)
	}

	// The session outlives ctx so the pool drains before stdio closes.
	sessCtx, closeSession := context.WithCancel(context.WithoutCancel(ctx))
	defer closeSession()

	done := make(chan error, 1)
	go func() { done <- s.mcp.Run(sessCtx, s.stdio) }()
	s.log.Info("serving mcp on stdio")

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("shutdown requested")
		s.backend.Shutdown()
		closeSession()
		<-done
	case err := <-done:
		s.backend.Shutdown()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			runErr = errs.Wrap(errs.ErrKindTransport, "stdio transport failed", err)
		} else {
			s.log.Info("client closed the stdio stream")
		}
	case err := <-adminErr:
		s.backend.Shutdown()
		closeSession()
		<-done
		runErr = err
	}

	if admin != nil {
		s.shutdownHTTP(admin)
	}
	return runErr
}

func (s *Server) runHTTP(ctx context.Context) error {
	srv := s.httpServer(s.cfg.ListenAddr, s.Router(true))
	serveErr := make(chan error, 1)
	go s.serve(srv, serveErr)

	s.log.InfoWith("serving mcp over streamable http", logger.Fields{
		"listen_addr": s.cfg.ListenAddr,
	})

	select {
	case <-ctx.Done():
		s.log.Info("shutdown requested")
		s.backend.Shutdown()
		s.shutdownHTTP(srv)
		return nil
	case err := <-serveErr:
		s.backend.Shutdown()
		return err
	}
}

func (s *Server) httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func (s *Server) serve(srv *http.Server, errCh chan<- error) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.ErrorWith("http server error", err, logger.Fields{"addr": srv.Addr})
		errCh <- errs.Wrap(errs.ErrKindTransport, "failed to listen and serve on "+srv.Addr, err)
	}
}

func (s *Server) shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.WarnWith("http server shutdown incomplete", err, logger.Fields{"addr": srv.Addr})
		return
	}
	s.log.InfoWith("http server stopped", logger.Fields{"addr": srv.Addr})
}
