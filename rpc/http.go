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
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakerchain/core/events"
	"stakerchain/observability"
	"stakerchain/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	shutdownTimeout = 10 * time.Second
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeUnauthorized   = -32001

	kindUnauthorized = "Unauthorized"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine modules.Engine
	Events *events.Log
	// Archive, when set, serves staker_events instead of the in-memory log.
	Archive   modules.History
	Logger    *slog.Logger
	RateLimit RateLimit
	// Auth guards the state-changing methods with a bearer JWT.
	Auth AuthConfig
	// ServiceName labels spans produced by the HTTP instrumentation.
	ServiceName string
}

type Server struct {
	staker     *modules.StakerModule
	events     *events.Log
	logger     *slog.Logger
	limiter    *RateLimiter
	auth       *Authenticator
	trustProxy bool
	tracer     trace.Tracer
	router     http.Handler
}

// NewServer builds the JSON-RPC server and its router.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stakerd"
	}
	s := &Server{
		staker:     modules.NewStakerModule(cfg.Engine, cfg.Events, cfg.Archive),
		events:     cfg.Events,
		logger:     logger.With(slog.String("component", "rpc")),
		limiter:    NewRateLimiter(cfg.RateLimit),
		trustProxy: cfg.RateLimit.TrustProxyHeaders,
		tracer:     otel.Tracer("stakerchain/rpc"),
	}
	s.auth = NewAuthenticator(cfg.Auth, s.logger)
	s.router = otelhttp.NewHandler(s.buildRouter(), cfg.ServiceName)
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	if s.trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.Middleware).Get("/ws/events", s.handleEventsWS)
	r.With(s.limiter.Middleware).Post("/", s.handle)
	return r
}

// Serve listens on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown rpc server: %w", err)
	}
	return nil
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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
	w.Header().Set("Content-Type", "application/json")
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
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeModuleError(w http.ResponseWriter, id interface{}, err *modules.ModuleError) {
	writeError(w, err.HTTPStatus, id, err.Code, err.Message, err.Data)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	_, span := s.tracer.Start(r.Context(), req.Method, trace.WithAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", req.Method),
	))
	var result interface{}
	modErr := s.authorize(r, req.Method)
	if modErr == nil {
		result, modErr = s.dispatch(req)
	}
	code := 0
	outcome := "success"
	if modErr != nil {
		code = modErr.Code
		outcome = "error"
		if data, ok := modErr.Data.(modules.ErrorData); ok {
			outcome = data.Kind
		}
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", code))
		span.SetStatus(codes.Error, modErr.Message)
		writeModuleError(w, req.ID, modErr)
	} else {
		writeResult(w, req.ID, result)
	}
	span.SetAttributes(attribute.String("staker.outcome", outcome))
	span.End()
	elapsed := time.Since(start)
	observability.RPC().Observe(req.Method, code, elapsed)

	attrs := []any{
		slog.String("method", req.Method),
		slog.String("outcome", outcome),
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.Duration("duration", elapsed),
	}
	if modErr != nil && modErr.Code == codeServerError {
		s.logger.Error("rpc call failed", append(attrs, slog.String("error", modErr.Message))...)
		return
	}
	s.logger.Info("rpc call", attrs...)
}

// mutatingMethods move value or change pool state and require a bearer token
// when auth is enabled.
var mutatingMethods = map[string]struct{}{
	"staker_stake":    {},
	"staker_execute":  {},
	"staker_withdraw": {},
}

func (s *Server) authorize(r *http.Request, method string) *modules.ModuleError {
	if _, ok := mutatingMethods[method]; !ok {
		return nil
	}
	if err := s.auth.Authorize(r); err != nil {
		return &modules.ModuleError{
			HTTPStatus: http.StatusUnauthorized,
			Code:       codeUnauthorized,
			Message:    "unauthorized",
			Data:       modules.ErrorData{Kind: kindUnauthorized, Detail: err.Error()},
		}
	}
	return nil
}

func (s *Server) dispatch(req *RPCRequest) (interface{}, *modules.ModuleError) {
	switch req.Method {
	case "staker_stake":
		return wrap(s.staker.Stake(firstParam(req)))
	case "staker_timeLeft":
		return wrap(s.staker.TimeLeft())
	case "staker_execute":
		return wrap(s.staker.Execute())
	case "staker_withdraw":
		return wrap(s.staker.Withdraw(firstParam(req)))
	case "staker_balance":
		return wrap(s.staker.Balance(firstParam(req)))
	case "staker_status":
		return wrap(s.staker.Status())
	case "staker_events":
		recent, err := s.staker.Events(firstParam(req))
		if err != nil {
			return nil, err
		}
		return recent, nil
	case "bank_balance":
		return wrap(s.staker.AccountBalance(firstParam(req)))
	default:
		return nil, &modules.ModuleError{
			HTTPStatus: http.StatusNotFound,
			Code:       codeMethodNotFound,
			Message:    "method not found",
			Data:       req.Method,
		}
	}
}

// wrap erases the concrete result type so a typed nil never reaches the
// encoder as a non-nil interface.
func wrap[T any](result *T, err *modules.ModuleError) (interface{}, *modules.ModuleError) {
	if err != nil {
		return nil, err
	}
	return result, nil
}

func firstParam(req *RPCRequest) json.RawMessage {
	if len(req.Params) == 0 {
		return nil
	}
	return req.Params[0]
}
