// Package server wires the protocol gateway, event bus, rate limiter and SSE
// transport into the demo HTTP service.
package server

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	x402 "github.com/llmer/x402-demo"
	"github.com/llmer/x402-demo/events"
	"github.com/llmer/x402-demo/evm"
	"github.com/llmer/x402-demo/ratelimit"
)

// Base Sepolia demo constants.
const (
	// Price is 0.001 USDC in atomic units (6 decimals).
	Price = "1000"

	Network = "eip155:84532" // CAIP-2 for Base Sepolia

	// USDCBaseSepolia is the USDC token contract on Base Sepolia.
	USDCBaseSepolia = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

const rateLimitPrefix = "x402-base-sepolia:rl"

// Config configures the demo server. PayTo may be empty when PrivateKey is
// set; the facilitator's own address is then used as the recipient.
type Config struct {
	ListenAddr     string
	SiteURL        string
	FacilitatorURL string
	RPCURL         string
	PrivateKey     string // hex, facilitator/ownership key; optional
	PayTo          string // payment recipient; optional when PrivateKey is set
	RedisURL       string // counter store; empty disables rate limiting

	DrainTimeout time.Duration // graceful shutdown budget
}

// Server is the composition root. Constructed once from configuration and
// torn down at process exit.
type Server struct {
	cfg Config
	log *zap.Logger

	bus         *events.Bus
	gateway     *x402.Gateway
	limiter     *ratelimit.Limiter
	facilitator *evm.FacilitatorClient
	key         *ecdsa.PrivateKey
	payTo       string
	origin      string
	discovery   []byte

	isReady atomic.Bool
	handler http.Handler

	ethOnce   sync.Once
	ethClient *ethclient.Client
	ethErr    error
}

// New validates cfg and builds the server. Configuration is validated before
// any address is derived from it.
func New(cfg Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ListenAddr == "" {
		return nil, errors.New("listen address is required")
	}
	if cfg.FacilitatorURL == "" {
		return nil, errors.New("facilitator url is required")
	}
	if cfg.PrivateKey == "" && cfg.PayTo == "" {
		return nil, errors.New("either a payTo address or a facilitator private key is required")
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 5 * time.Second
	}

	origin, err := parseOrigin(cfg.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("site url: %w", err)
	}

	s := &Server{
		cfg:         cfg,
		log:         log,
		bus:         events.NewBus(),
		facilitator: evm.NewFacilitatorClient(cfg.FacilitatorURL),
		origin:      origin,
	}

	if cfg.PrivateKey != "" {
		key, err := evm.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		s.key = key
	}

	// Config is valid; the payTo fallback is derived only now.
	s.payTo = cfg.PayTo
	if s.payTo == "" {
		s.payTo = evm.Address(s.key)
	}

	s.gateway = x402.NewGateway(s.facilitator, s.bus, log)
	s.limiter = newLimiter(cfg.RedisURL, log)

	discovery, err := buildDiscovery(origin, s.key)
	if err != nil {
		return nil, fmt.Errorf("build discovery document: %w", err)
	}
	s.discovery = discovery

	s.handler = s.routes()
	s.isReady.Store(true)

	return s, nil
}

// newLimiter builds the rate limiter with the demo's static tier table. An
// empty redis URL or a URL that fails to parse yields a disabled limiter.
func newLimiter(redisURL string, log *zap.Logger) *ratelimit.Limiter {
	tiers := map[string]ratelimit.Tier{
		"/api/cowsays": {Limit: 10, Window: time.Minute},
		"/api/events":  {Limit: 5, Window: time.Minute},
	}
	fallback := ratelimit.Tier{Limit: 30, Window: time.Minute}

	var store ratelimit.Store
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Warn("invalid redis url, rate limiting disabled", zap.Error(err))
		} else {
			store = ratelimit.NewRedisStore(redis.NewClient(opts))
		}
	}

	return ratelimit.New(store, tiers, fallback, rateLimitPrefix, log)
}

// Handler returns the root handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Bus returns the event bus. Exposed for tests.
func (s *Server) Bus() *events.Bus {
	return s.bus
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", x402.HeaderPaymentSignature},
		ExposedHeaders: []string{x402.HeaderPaymentRequired, x402.HeaderPaymentResponse},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	// Everything protocol-bearing sits behind admission control.
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Get("/.well-known/x402", s.handleWellKnown)

		// The SSE stream outlives any sane request timeout, so the timeout
		// middleware only wraps the request/response routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Method(http.MethodGet, "/api/cowsays", s.gateway.Protect(s.cowsaysResource(), http.HandlerFunc(s.handleCowsays)))
			r.Method(http.MethodGet, "/api/quote", s.gateway.Protect(s.quoteResource(), http.HandlerFunc(s.handleQuote)))

			r.Get("/api/facilitator/supported", s.handleFacilitatorSupported)
			r.Post("/api/facilitator/verify", s.handleFacilitatorVerify)
			r.Get("/api/facilitator/balance", s.handleFacilitatorBalance)
		})

		r.Get("/api/events", s.handleEvents)
	})

	return r
}

func (s *Server) cowsaysResource() x402.ResourceConfig {
	return x402.ResourceConfig{
		Path:        "/api/cowsays",
		Description: "cowsay ASCII art",
		MimeType:    "application/json",
		Amount:      Price,
		Network:     Network,
		Asset:       USDCBaseSepolia,
		PayTo:       s.payTo,
		MaxTimeout:  5 * time.Minute,
		// EIP-712 domain for USDC on Base Sepolia, required by the exact EVM
		// scheme to build the TransferWithAuthorization typed data.
		Extra: &x402.EIP712Domain{Name: "USDC", Version: "2"},
	}
}

func (s *Server) quoteResource() x402.ResourceConfig {
	return x402.ResourceConfig{
		Path:        "/api/quote",
		Description: "Random inspirational quote",
		MimeType:    "application/json",
		Amount:      Price,
		Network:     Network,
		Asset:       USDCBaseSepolia,
		PayTo:       s.payTo,
		MaxTimeout:  5 * time.Minute,
		Extra:       &x402.EIP712Domain{Name: "USDC", Version: "2"},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE connections stay open indefinitely and are
		// bounded by heartbeats and client disconnects instead.
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", zap.String("listenAddr", s.cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.isReady.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	s.log.Info("HTTP server stopped")
	return nil
}

func parseOrigin(siteURL string) (string, error) {
	if siteURL == "" {
		return "", errors.New("site url is required")
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("site url %q must include scheme and host", siteURL)
	}
	return strings.TrimSuffix(u.Scheme+"://"+u.Host, "/"), nil
}
