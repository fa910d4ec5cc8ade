// Package http serves computed schedules and priorities over a JSON API and
// as an iCalendar feed.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"paydays/internal/cache"
	"paydays/internal/core"
	"paydays/internal/log"
	"paydays/internal/middleware/ratelimit"
	"paydays/internal/middleware/security"
	"paydays/internal/scheduler"

	"github.com/gorilla/mux"
)

// Planner is the part of services.Planner the API needs.
type Planner interface {
	DefaultStrategy() scheduler.StrategyName
	Plan(ctx context.Context, name scheduler.StrategyName, now time.Time) (scheduler.Plan, error)
	Rank(ctx context.Context, name scheduler.StrategyName, now time.Time) ([]scheduler.PrioritizedBill, []scheduler.RejectedBill, error)
	RefreshPriorities(ctx context.Context, name scheduler.StrategyName, now time.Time) ([]core.PriorityUpdate, error)
	Ready(ctx context.Context) error
}

type Options struct {
	CacheTTL  time.Duration
	CacheSize int
	// Location decides which calendar day "now" falls on.
	Location  *time.Location
	RateLimit ratelimit.Config
	Logger    *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	planner Planner
	plans   *cache.PlanCache
	caches  *cache.Manager
	limiter *ratelimit.Limiter
	loc     *time.Location
	now     func() time.Time

	shutdownOnce sync.Once
}

const (
	requestTimeout  = 10 * time.Second
	readyTimeout    = 2 * time.Second
	cleanupInterval = 10 * time.Minute
)

// NewServer configures routes, returning a ready-to-run server. Call
// Shutdown to stop its background cleanup.
func NewServer(addr string, planner Planner, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheSize < 1 {
		opts.CacheSize = 64
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		planner: planner,
		plans:   cache.NewPlanCache(opts.CacheSize, opts.CacheTTL),
		caches:  cache.NewManager(),
		limiter: ratelimit.NewLimiter(opts.RateLimit),
		loc:     opts.Location,
		now:     opts.Now,
	}
	s.caches.Register(s.plans)
	s.caches.StartCleanup(cleanupInterval)

	r := mux.NewRouter()
	r.Use(log.HTTPMiddleware(logger))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/schedule.ics", s.handleCalendar).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/schedule", s.handleSchedule).Methods(http.MethodGet)
	api.HandleFunc("/priorities", s.handlePriorities).Methods(http.MethodGet)
	throttled := s.limiter.Middleware(extractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", log.FieldClientIP, extractClientIP(r))
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})
	api.Handle("/priorities/refresh", throttled(http.HandlerFunc(s.handleRefresh))).Methods(http.MethodPost)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// InvalidatePlans drops every cached plan.
func (s *Server) InvalidatePlans() {
	s.plans.Purge()
}
