package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkleDistributor"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/metrics"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rewardsDistributor"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rootRegistry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

/*
Server exposes the root registry and both claim ledgers over HTTP.

Registry:

	GET  /roots, /roots/count, /roots/{id}
	POST /roots                  signed SubmitRootRequest (owner or rewarder)
	POST /roots/{id}/disable     signed ToggleRootRequest (owner or rewarder)
	POST /roots/{id}/enable      signed ToggleRootRequest (owner or rewarder)

Cumulative ledger:

	POST /claim                  ClaimRequest, any caller, rate limited
	GET  /claimed/{account}
	POST /rewarders              signed SetRewarderRequest (owner)
	GET  /rewarders/{account}
	POST /withdraw               signed WithdrawRequest (owner)

One-shot distribution (only when a tree artifact is loaded):

	GET  /distribution
	GET  /distribution/proof/{account}
	GET  /distribution/claimed/{index}
	POST /distribution/claim     DistributionClaimRequest, any caller, rate limited

Operations:

	GET  /health, /metrics, /events?since=N

Signed requests carry a requestSigner.SignedMessage. The address recovered from
the signature is the caller. The payload names the action it authorizes and
when it was issued; it is accepted once, within signedRequestTTL of issue.
*/
type Server struct {
	registry    *rootRegistry.RootRegistry
	distributor *rewardsDistributor.RewardsDistributor
	oneShot     *merkleDistributor.MerkleDistributor
	artifact    *merkle.TreeArtifact
	store       persistence.IRewardsPersistence
	eventLog    *events.Log
	metrics     *metrics.Metrics
	limiter     *rate.Limiter
	replay      *replayGuard
	clock       clock.PassiveClock
	logger      *zap.Logger
	httpServer  *http.Server
}

type Config struct {
	Port        int
	Registry    *rootRegistry.RootRegistry
	Distributor *rewardsDistributor.RewardsDistributor
	Store       persistence.IRewardsPersistence
	EventLog    *events.Log
	Metrics     *metrics.Metrics

	// OneShot and Artifact enable the /distribution endpoints
	OneShot  *merkleDistributor.MerkleDistributor
	Artifact *merkle.TreeArtifact

	// ClaimRateLimit is the sustained claims per second, 0 disables limiting
	ClaimRateLimit float64
	ClaimBurst     int

	// Clock stamps signed request freshness, defaults to the real clock
	Clock clock.PassiveClock

	Logger *zap.Logger
}

// NewServer creates a new server instance
func NewServer(cfg *Config) *Server {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.ClaimRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ClaimRateLimit), cfg.ClaimBurst)
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewMetrics()
	}
	c := cfg.Clock
	if c == nil {
		c = clock.RealClock{}
	}

	s := &Server{
		registry:    cfg.Registry,
		distributor: cfg.Distributor,
		oneShot:     cfg.OneShot,
		artifact:    cfg.Artifact,
		store:       cfg.Store,
		eventLog:    cfg.EventLog,
		metrics:     m,
		limiter:     limiter,
		replay:      newReplayGuard(c),
		clock:       c,
		logger:      cfg.Logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /events", s.handleEvents)

	// Registry endpoints
	mux.HandleFunc("GET /roots", s.handleListRoots)
	mux.HandleFunc("GET /roots/count", s.handleRootCount)
	mux.HandleFunc("GET /roots/{id}", s.handleGetRoot)
	mux.HandleFunc("POST /roots", s.handleSubmitRoot)
	mux.HandleFunc("POST /roots/{id}/disable", s.handleToggleRoot(false))
	mux.HandleFunc("POST /roots/{id}/enable", s.handleToggleRoot(true))

	// Cumulative ledger endpoints
	mux.HandleFunc("POST /claim", s.rateLimited(s.handleClaim))
	mux.HandleFunc("GET /claimed/{account}", s.handleCumulativeClaimed)
	mux.HandleFunc("POST /rewarders", s.handleSetRewarder)
	mux.HandleFunc("GET /rewarders/{account}", s.handleIsRewarder)
	mux.HandleFunc("POST /withdraw", s.handleWithdraw)

	// One-shot distribution endpoints
	if s.oneShot != nil && s.artifact != nil {
		mux.HandleFunc("GET /distribution", s.handleDistribution)
		mux.HandleFunc("GET /distribution/proof/{account}", s.handleDistributionProof)
		mux.HandleFunc("GET /distribution/claimed/{index}", s.handleDistributionClaimed)
		mux.HandleFunc("POST /distribution/claim", s.rateLimited(s.handleDistributionClaim))
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

const (
	requestIDHeader = "X-Request-Id"
	// callerHeader optionally names the relayer submitting a permissionless claim
	callerHeader = "X-Caller-Address"
)

// instrument tags each request with an id and records its outcome
func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		_, route := next.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, rec.status, elapsed)
		s.logger.Sugar().Debugw("Request served",
			"request_id", requestID,
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.metrics.ObserveRejection(r.URL.Path, "rate_limited")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h(w, r)
	}
}
