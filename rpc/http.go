package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"peerescrow/core/events"
	"peerescrow/native/escrow"
	"peerescrow/observability"
)

const (
	tracerName      = "peerescrow/rpc"
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeRateLimited    = -32029
)

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	RequestsPerMinute float64
	Burst             int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// Server exposes the escrow engine over JSON-RPC.
type Server struct {
	engine     *escrow.Engine
	dispatcher *escrow.Dispatcher
	recorder   *events.Recorder
	audit      *AuditStore
	metrics    *observability.Metrics
	logger     *slog.Logger
	limiter    *RateLimiter
	traces     trace.TracerProvider
	tracer     trace.Tracer
	cfg        ServerConfig
}

// Deps are the collaborators of a Server. Recorder, Audit, Metrics and
// TracerProvider are optional; spans go to the global provider by default.
type Deps struct {
	Engine         *escrow.Engine
	Dispatcher     *escrow.Dispatcher
	Recorder       *events.Recorder
	Audit          *AuditStore
	Metrics        *observability.Metrics
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

func NewServer(deps Deps, cfg ServerConfig) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	traces := deps.TracerProvider
	if traces == nil {
		traces = otel.GetTracerProvider()
	}
	s := &Server{
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		recorder:   deps.Recorder,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     logger.With(slog.String("component", "rpc")),
		traces:     traces,
		tracer:     traces.Tracer(tracerName),
		cfg:        cfg,
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(RateLimit{RequestsPerMinute: cfg.RequestsPerMinute, Burst: cfg.Burst})
	}
	return s
}

// Router returns the HTTP handler serving /rpc, /healthz and /metrics. Every
// request runs inside an otelhttp server span.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if reg := s.metrics.Registry(); reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware(s.metrics))
		}
		r.Post("/rpc", s.handle)
		r.Post("/", s.handle)
	})
	return otelhttp.NewHandler(r, "escrow-rpc", otelhttp.WithTracerProvider(s.traces))
}

// ListenAndServe serves until ctx is cancelled and then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc listening", slog.String("address", addr))
		serveErr <- server.ListenAndServe()
	}()
	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	method := ""
	defer func() { s.metrics.Observe(method, rec.status, time.Since(start)) }()

	reader := http.MaxBytesReader(rec, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	rec.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(rec, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(rec, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(rec, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	method = req.Method

	switch req.Method {
	case "escrow_submit":
		s.handleEscrowSubmit(rec, r, req)
	case "escrow_getConfig":
		s.handleEscrowGetConfig(rec, r, req)
	case "escrow_getEscrow":
		s.handleEscrowGetEscrow(rec, r, req)
	case "escrow_deriveAddress":
		s.handleEscrowDeriveAddress(rec, r, req)
	case "escrow_getBalance":
		s.handleEscrowGetBalance(rec, r, req)
	case "escrow_listEvents":
		s.handleEscrowListEvents(rec, r, req)
	default:
		method = "unknown"
		writeError(rec, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}
