package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/contextkeys"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/invite"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/rbac"
)

// maxRequestBody bounds every request body the service accepts. Role
// and invite payloads are small; anything larger is hostile.
const maxRequestBody = 1 << 20

// Options carries the dependencies the server needs. Redis may be nil,
// in which case the public routes run without rate limiting.
type Options struct {
	Engine     *rbac.Engine
	Invites    *invite.Service
	DB         *sql.DB
	Redis      *redis.Client
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Registry   *prometheus.Registry
	UserHeader string
	PublicRate *middleware.RateLimitConfig

	// Audit is optional; nil means events are discarded. AuditReader
	// enables the admin trail endpoint when set.
	Audit       audit.Recorder
	AuditReader audit.Reader
}

// Server is the HTTP front of the access-control service.
type Server struct {
	router   *mux.Router
	engine   *rbac.Engine
	gate     *rbac.Gate
	invites  *invite.Service
	db       *sql.DB
	identity *middleware.IdentityMiddleware
	limiter  *middleware.RateLimiter
	logger   *observability.Logger
	log      *logrus.Entry
	metrics  *observability.Metrics
	registry *prometheus.Registry
	recorder audit.Recorder
	trail    audit.Reader
}

// NewServer wires the route table and middleware chain.
func NewServer(opts Options) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		engine:   opts.Engine,
		gate:     rbac.NewGate(opts.Engine),
		invites:  opts.Invites,
		db:       opts.DB,
		identity: middleware.NewIdentityMiddleware(opts.UserHeader),
		logger:   opts.Logger,
		log:      logrus.WithField("component", "api"),
		metrics:  opts.Metrics,
		registry: opts.Registry,
		recorder: opts.Audit,
		trail:    opts.AuditReader,
	}

	if s.recorder == nil {
		s.recorder = audit.NopRecorder{}
	}

	if opts.Redis != nil {
		rateConfig := opts.PublicRate
		if rateConfig == nil {
			rateConfig = middleware.PublicRateLimitConfig()
		}
		s.limiter = middleware.NewRateLimiter(opts.Redis, rateConfig, "public", opts.Logger)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes and their gates.
func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger, s.metrics),
		httputil.MaxBytesMiddleware(maxRequestBody),
		s.identity.Handler,
	)

	// Operational endpoints.
	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	if s.registry != nil {
		s.router.Handle("/metrics", observability.Handler(s.registry)).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Role administration.
	admin := s.gate.Require(rbac.RoleGlobalAdmin)
	api.Handle("/roles", admin(http.HandlerFunc(s.createRole))).Methods("POST")
	api.Handle("/grants", admin(http.HandlerFunc(s.grantRole))).Methods("POST")
	api.Handle("/grants", admin(http.HandlerFunc(s.revokeRole))).Methods("DELETE")
	api.Handle("/check", admin(http.HandlerFunc(s.checkPermission))).Methods("POST")
	if s.trail != nil {
		api.Handle("/audit", admin(http.HandlerFunc(s.listAuditEvents))).Methods("GET")
	}

	// Broadcast fan-out: who holds a role.
	fanout := s.gate.RequireAny(rbac.RoleGlobalAdmin, rbac.RoleBroadcastSend)
	api.Handle("/roles/{roleKey}/users", fanout(http.HandlerFunc(s.subjectsForRole))).Methods("GET")

	// Caller's own permission set.
	api.Handle("/me/permissions", middleware.RequireUser(http.HandlerFunc(s.myPermissions))).Methods("GET")

	// Channel bootstrap and the channel-scoped post gate.
	api.Handle("/channels/{channelId}/roles", middleware.RequireUser(http.HandlerFunc(s.bootstrapChannel))).Methods("POST")
	api.Handle("/channels/{channelId}/messages", middleware.RequireUser(http.HandlerFunc(s.postChannelMessage))).Methods("POST")

	// Invite administration.
	inviter := s.gate.RequireAny(rbac.RoleGlobalCreateInvite, rbac.RoleGlobalAdmin)
	api.Handle("/invites", inviter(http.HandlerFunc(s.createInvite))).Methods("POST")
	api.Handle("/invites", inviter(http.HandlerFunc(s.listInvites))).Methods("GET")
	api.Handle("/invites/{codeId}/revoke", inviter(http.HandlerFunc(s.revokeInvite))).Methods("POST")

	// Onboarding routes: no role required, rate limited per client.
	api.Handle("/invites/validate", s.rateLimited(http.HandlerFunc(s.validateInvite))).Methods("POST")
	api.Handle("/invites/redeem", s.rateLimited(middleware.RequireUser(http.HandlerFunc(s.redeemInvite)))).Methods("POST")
}

// rateLimited wraps a handler with the public limiter when one is
// configured.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Handler(next)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// healthz reports liveness plus a database ping. A failed ping returns
// 503 so the load balancer rotates the instance out.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.log.WithError(err).Warn("health check database ping failed")
			httputil.WriteServiceUnavailable(w, "database unreachable")
			return
		}
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// audit records an event for the request, best effort.
func (s *Server) audit(r *http.Request, event audit.Event) {
	event.RequestID = contextkeys.GetRequestID(r.Context())
	if err := s.recorder.Record(r.Context(), event); err != nil {
		s.log.WithError(err).WithField("event_type", event.EventType).Warn("audit event dropped")
	}
}

// listAuditEvents handles GET /api/v1/audit.
func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r, 50, 200)

	events, err := s.trail.Recent(r.Context(), page.Limit)
	if err != nil {
		s.log.WithError(err).Error("audit trail listing failed")
		httputil.WriteServiceUnavailable(w, "audit trail unavailable")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"data":  events,
		"count": len(events),
	})
}
