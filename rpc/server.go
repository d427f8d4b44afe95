package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dlanstake/core"
	"dlanstake/core/events"
	"dlanstake/core/types"
	"dlanstake/native/common"
	"dlanstake/observability"
	"dlanstake/rpc/middleware"
)

const (
	jsonRPCVersion   = "2.0"
	maxRequestBytes  = 1 << 20 // 1 MiB
	defaultDedupeTTL = 2 * time.Minute
	readHeaderLimit  = 10 * time.Second
)

const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeUnauthorized     = middleware.CodeUnauthorized
	codeServerError      = -32000
	codeDuplicate        = -32010
	codeRateLimited      = middleware.CodeRateLimited
	codeProgramRejection = -32030
)

// ReceiptIndex is the read side of the receipt store.
type ReceiptIndex interface {
	Get(ctx context.Context, id string) (*types.Receipt, error)
	ByAuthority(ctx context.Context, authority solana.PublicKey, limit int) ([]*types.Receipt, error)
	ByDigest(ctx context.Context, digest string, limit int) ([]*types.Receipt, error)
}

// Config tunes the listener. Zero values fall back to defaults.
type Config struct {
	RateLimit      middleware.RateLimit
	Auth           middleware.AuthConfig
	AllowedOrigins []string
	DedupeTTL      time.Duration
	MaxBodyBytes   int64
	Quota          common.Quota
}

type Server struct {
	exec     *core.Executor
	receipts ReceiptIndex
	stream   *events.Broadcaster
	cfg      Config
	logger   *slog.Logger

	limiter *middleware.RateLimiter
	auth    *middleware.Authenticator
	quota   *common.QuotaTracker
	nowFn   func() time.Time

	mu         sync.Mutex
	seen       map[string]time.Time
	httpServer *http.Server
}

func NewServer(exec *core.Executor, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaultDedupeTTL
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = maxRequestBytes
	}
	logger = logger.With(slog.String("component", "rpc"))
	return &Server{
		exec:    exec,
		cfg:     cfg,
		logger:  logger,
		limiter: middleware.NewRateLimiter(cfg.RateLimit, logger),
		auth:    middleware.NewAuthenticator(cfg.Auth),
		quota:   common.NewQuotaTracker(cfg.Quota),
		nowFn:   time.Now,
		seen:    make(map[string]time.Time),
	}
}

// SetReceipts enables stake_getReceipts.
func (s *Server) SetReceipts(index ReceiptIndex) { s.receipts = index }

// SetStream enables the websocket event stream.
func (s *Server) SetStream(b *events.Broadcaster) { s.stream = b }

// SetNowFunc overrides the clock used for dedupe and quota windows.
func (s *Server) SetNowFunc(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

// Handler builds the HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(s.cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(g chi.Router) {
		g.Use(s.limiter.Middleware)
		g.Post("/", s.handle)
		g.Post("/rpc", s.handle)
		g.Get("/ws/events", s.handleEvents)
	})
	return otelhttp.NewHandler(r, "dlan-rpc")
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderLimit,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	s.logger.Info("json-rpc listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
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

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"stake_sendInstruction": s.handleSendInstruction,
		"stake_getClaimStatus":  s.handleGetClaimStatus,
		"stake_getTokenBalance": s.handleGetTokenBalance,
		"stake_getLamports":     s.handleGetLamports,
		"stake_getMint":         s.handleGetMint,
		"stake_listMints":       s.handleListMints,
		"stake_getAuthorities":  s.handleGetAuthorities,
		"stake_getReceipts":     s.handleGetReceipts,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to parse request", err.Error())
		return
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid JSON-RPC request", nil)
		return
	}
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	handler(recorder, r, &req)
	observability.ModuleMetrics().Observe("stake", req.Method, recorder.status, time.Since(start))
	s.logger.Debug("rpc request",
		slog.String("method", req.Method),
		slog.String("request_id", middleware.RequestIDFrom(r.Context())),
		slog.Int("status", recorder.status))
}

// rememberDigest reports false when the digest was already seen within the
// dedupe window.
func (s *Server) rememberDigest(digest string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d, seenAt := range s.seen {
		if now.Sub(seenAt) > s.cfg.DedupeTTL {
			delete(s.seen, d)
		}
	}
	if _, exists := s.seen[digest]; exists {
		return false
	}
	s.seen[digest] = now
	return true
}

// forgetDigest releases a digest whose submission was turned away before
// execution.
func (s *Server) forgetDigest(digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, digest)
}
