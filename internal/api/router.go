package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"

	"github.com/tradeconnect/server/internal/api/handlers"
	"github.com/tradeconnect/server/internal/api/middleware"
	"github.com/tradeconnect/server/internal/audit"
	"github.com/tradeconnect/server/internal/auth"
	"github.com/tradeconnect/server/internal/cache"
	"github.com/tradeconnect/server/internal/clock"
	"github.com/tradeconnect/server/internal/config"
	"github.com/tradeconnect/server/internal/domain/attendance"
	"github.com/tradeconnect/server/internal/domain/capacity"
	"github.com/tradeconnect/server/internal/domain/certs"
	"github.com/tradeconnect/server/internal/domain/fel"
	"github.com/tradeconnect/server/internal/domain/localization"
	"github.com/tradeconnect/server/internal/domain/reports"
	"github.com/tradeconnect/server/internal/domain/speakers"
	"github.com/tradeconnect/server/internal/domain/users"
	"github.com/tradeconnect/server/internal/domain/webhooks"
	"github.com/tradeconnect/server/internal/email"
	"github.com/tradeconnect/server/internal/jobs"
	"github.com/tradeconnect/server/internal/metrics"
	"github.com/tradeconnect/server/internal/storage/postgres"
)

// Router bundles the HTTP handler with the long-lived components the
// server lifecycle manages: the River client (started and stopped by the
// serve command) and the Redis cache connection.
type Router struct {
	Handler     http.Handler
	RiverClient *river.Client[pgx.Tx]
	Cache       *cache.Redis
	Users       *users.Service
	I18n        *localization.Service
}

// NewRouter wires repositories, services and handlers into the API surface.
// The pool is owned by the caller; everything built here is either
// stateless or returned through Router for lifecycle management.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool, version, gitCommit, buildDate string) (*Router, error) {
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return nil, err
	}

	clk := clock.NewSystem()
	env := cfg.Environment
	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
	auditSvc := audit.NewService(repo.Audit(), clk, logger)

	catalog, err := localization.NewCatalog(cfg.Localization.DefaultLocale)
	if err != nil {
		return nil, err
	}
	i18n := localization.NewService(repo.Localization(), catalog)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := i18n.WarmUp(warmCtx); err != nil {
		logger.Warn().Err(err).Msg("message overrides not loaded, using catalog defaults")
	}
	warmCancel()

	var reportsCache *cache.Redis
	if cfg.Redis.Addr != "" {
		reportsCache, err = cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ReportsTTL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, report caching disabled")
			reportsCache = nil
		}
	}

	// The job client must exist before the services that enqueue through
	// it, while the workers wrap those same services. River allows worker
	// registration up until Start, so the set is filled in afterwards.
	policy := jobs.NewRetryPolicy(cfg.Webhooks.MaxAttempts, cfg.Blockchain.MaxAttempts)
	workers := river.NewWorkers()
	hooks := []rivertype.Hook{metrics.NewRiverMetricsHook()}
	riverClient, err := jobs.NewClient(pool, policy, workers, slog.Default(), hooks, jobs.NewPeriodicJobs())
	if err != nil {
		return nil, err
	}
	enqueuer := jobs.NewEnqueuer(riverClient, policy)

	webhooksSvc := webhooks.NewService(repo.Webhooks(), enqueuer, clk, logger)
	deliverer := webhooks.NewDeliverer(repo.Webhooks(), clk, cfg.Webhooks.DeliveryTimeout)

	gateway := certs.NewHTTPGateway(cfg.Blockchain.GatewayURL, cfg.Blockchain.APIKey)
	certsSvc := certs.NewService(repo.Certificates(), gateway, enqueuer, webhooksSvc, clk, cfg.Blockchain.Network)

	mailer, err := email.NewService(cfg.Email.ResendAPIKey, cfg.Email.From, logger)
	if err != nil {
		return nil, err
	}
	capacitySvc := capacity.NewService(repo.Capacity(), clk, promotionFanout{mail: mailer, events: webhooksSvc}, logger)

	jobs.RegisterWorkers(workers, deliverer, certsSvc, capacitySvc, pool)

	speakersSvc := speakers.NewService(repo.Speakers(), clk)
	attendanceSvc := attendance.NewService(repo.Attendance(), clk)
	felSvc := fel.NewService(repo.Invoices(), clk, webhooksSvc)
	reportsSvc := reports.NewService(repo.Reports(), reportsCache, clk, logger)
	usersSvc := users.NewService(repo.Users(), tokens, clk, logger)

	speakersHandler := handlers.NewSpeakersHandler(speakersSvc, webhooksSvc, auditSvc, i18n, env)
	capacityHandler := handlers.NewCapacityHandler(capacitySvc, webhooksSvc, auditSvc, i18n, env)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceSvc, webhooksSvc, auditSvc, i18n, env)
	felHandler := handlers.NewFELHandler(felSvc, auditSvc, i18n, env)
	certsHandler := handlers.NewCertificatesHandler(certsSvc, auditSvc, i18n, env)
	webhooksHandler := handlers.NewWebhooksHandler(webhooksSvc, auditSvc, i18n, env)
	reportsHandler := handlers.NewReportsHandler(reportsSvc, env)
	usersHandler := handlers.NewUsersHandler(usersSvc, auditSvc, i18n, env)
	i18nHandler := handlers.NewLocalizationHandler(i18n, auditSvc, env)
	auditHandler := handlers.NewAuditHandler(auditSvc, env)
	health := handlers.NewHealthChecker(pool, riverClient, version, gitCommit)

	authed := middleware.RequireAuth(tokens, env)
	staffRole := middleware.RequireRole(env, auth.RoleAdmin, auth.RoleStaff)
	adminRole := middleware.RequireRole(env, auth.RoleAdmin)
	publicSize := middleware.PublicRequestSize()
	adminSize := middleware.AdminRequestSize()
	loginTier := middleware.WithRateLimitTierHandler(middleware.TierLogin)
	mutationTier := middleware.WithRateLimitTierHandler(middleware.TierMutation)
	adminTier := middleware.WithRateLimitTierHandler(middleware.TierAdmin)

	// The limiter reads the tier from the request context, so it has to run
	// inside the tier wrapper on every chain.
	limit := middleware.RateLimit(cfg.RateLimit)

	public := func(h http.HandlerFunc) http.Handler { return wrap(h, limit, publicSize) }
	staff := func(h http.HandlerFunc) http.Handler { return wrap(h, authed, staffRole, limit, publicSize) }
	staffMut := func(h http.HandlerFunc) http.Handler {
		return wrap(h, authed, staffRole, mutationTier, limit, publicSize)
	}
	adminMut := func(h http.HandlerFunc) http.Handler {
		return wrap(h, authed, adminRole, mutationTier, limit, publicSize)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return wrap(h, authed, adminRole, adminTier, limit, adminSize)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/api/v1/health", wrap(health.Health().ServeHTTP, limit))
	mux.Handle("/api/v1/version", wrap(VersionHandler(version, gitCommit, buildDate).ServeHTTP, limit))
	mux.Handle("/api/v1/openapi.json", wrap(OpenAPIHandler().ServeHTTP, limit))

	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: wrap(usersHandler.Login, loginTier, limit, publicSize),
	}))

	mux.Handle("/api/v1/speakers", methodMux(map[string]http.Handler{
		http.MethodGet:  public(speakersHandler.List),
		http.MethodPost: staffMut(speakersHandler.Create),
	}))
	mux.Handle("/api/v1/speakers/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    public(speakersHandler.Get),
		http.MethodPut:    staffMut(speakersHandler.Update),
		http.MethodPatch:  staffMut(speakersHandler.Update),
		http.MethodDelete: staffMut(speakersHandler.Delete),
	}))
	mux.Handle("/api/v1/speakers/{id}/verify", methodMux(map[string]http.Handler{
		http.MethodPost: adminMut(speakersHandler.Verify),
	}))
	mux.Handle("/api/v1/speakers/{id}/availability", methodMux(map[string]http.Handler{
		http.MethodPost: staffMut(speakersHandler.AddAvailability),
	}))
	mux.Handle("/api/v1/speakers/{id}/evaluate", methodMux(map[string]http.Handler{
		http.MethodPost: staffMut(speakersHandler.Evaluate),
	}))

	mux.Handle("/api/v1/events/{id}/capacity", methodMux(map[string]http.Handler{
		http.MethodGet:   staff(capacityHandler.GetConfig),
		http.MethodPatch: adminMut(capacityHandler.UpdateConfig),
	}))
	mux.Handle("/api/v1/events/{id}/availability", methodMux(map[string]http.Handler{
		http.MethodGet: public(capacityHandler.Availability),
	}))
	mux.Handle("/api/v1/events/{id}/locks", methodMux(map[string]http.Handler{
		http.MethodGet:  staff(capacityHandler.ActiveLocks),
		http.MethodPost: staffMut(capacityHandler.AcquireLock),
	}))
	mux.Handle("/api/v1/locks/{lockId}/confirm", methodMux(map[string]http.Handler{
		http.MethodPost: staffMut(capacityHandler.ConfirmLock),
	}))
	mux.Handle("/api/v1/locks/{lockId}/release", methodMux(map[string]http.Handler{
		http.MethodPost: staffMut(capacityHandler.ReleaseLock),
	}))
	mux.Handle("/api/v1/events/{id}/waitlist", methodMux(map[string]http.Handler{
		http.MethodGet:  staff(capacityHandler.Waitlist),
		http.MethodPost: staffMut(capacityHandler.JoinWaitlist),
	}))
	mux.Handle("/api/v1/events/{id}/waitlist/promote", methodMux(map[string]http.Handler{
		http.MethodPost: staffMut(capacityHandler.PromoteNext),
	}))
	mux.Handle("/api/v1/waitlist/{entryId}", methodMux(map[string]http.Handler{
		http.MethodDelete: staffMut(capacityHandler.CancelWaitlistEntry),
	}))

	mux.Handle("/api/v1/registrations/{id}/checkin", methodMux(map[string]http.Handler{
		http.MethodPost: staffMut(attendanceHandler.CheckIn),
	}))
	mux.Handle("/api/v1/events/{id}/attendance", methodMux(map[string]http.Handler{
		http.MethodGet: staff(attendanceHandler.Report),
	}))

	mux.Handle("/api/v1/fel/invoices", methodMux(map[string]http.Handler{
		http.MethodGet: staff(felHandler.List),
	}))
	mux.Handle("/api/v1/fel/invoices/voided", methodMux(map[string]http.Handler{
		http.MethodGet: staff(felHandler.Voided),
	}))
	mux.Handle("/api/v1/fel/invoices/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: staff(felHandler.Get),
	}))
	mux.Handle("/api/v1/fel/invoices/{id}/void", methodMux(map[string]http.Handler{
		http.MethodPost: adminMut(felHandler.Void),
	}))

	mux.Handle("/api/v1/certificates", methodMux(map[string]http.Handler{
		http.MethodGet:  staff(certsHandler.List),
		http.MethodPost: staffMut(certsHandler.Request),
	}))
	mux.Handle("/api/v1/certificates/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: staff(certsHandler.Get),
	}))

	mux.Handle("/api/v1/webhooks", methodMux(map[string]http.Handler{
		http.MethodGet:  admin(webhooksHandler.ListEndpoints),
		http.MethodPost: admin(webhooksHandler.CreateEndpoint),
	}))
	mux.Handle("/api/v1/webhooks/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    admin(webhooksHandler.GetEndpoint),
		http.MethodPatch:  admin(webhooksHandler.UpdateEndpoint),
		http.MethodDelete: admin(webhooksHandler.DeleteEndpoint),
	}))
	mux.Handle("/api/v1/webhooks/{id}/test", methodMux(map[string]http.Handler{
		http.MethodPost: admin(webhooksHandler.TestEndpoint),
	}))
	mux.Handle("/api/v1/webhooks/{id}/deliveries", methodMux(map[string]http.Handler{
		http.MethodGet: admin(webhooksHandler.ListDeliveries),
	}))

	mux.Handle("/api/v1/reports/financial", methodMux(map[string]http.Handler{
		http.MethodGet: admin(reportsHandler.Financial),
	}))
	mux.Handle("/api/v1/reports/kpis", methodMux(map[string]http.Handler{
		http.MethodGet: admin(reportsHandler.KPIs),
	}))

	mux.Handle("/api/v1/i18n", methodMux(map[string]http.Handler{
		http.MethodGet: public(i18nHandler.Locales),
	}))
	mux.Handle("/api/v1/i18n/{locale}", methodMux(map[string]http.Handler{
		http.MethodGet: public(i18nHandler.Messages),
	}))
	mux.Handle("/api/v1/admin/i18n/{locale}", methodMux(map[string]http.Handler{
		http.MethodPut: admin(i18nHandler.UpdateOverrides),
	}))

	mux.Handle("/api/v1/admin/users", methodMux(map[string]http.Handler{
		http.MethodGet:  admin(usersHandler.List),
		http.MethodPost: admin(usersHandler.Create),
	}))
	mux.Handle("/api/v1/admin/users/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: admin(usersHandler.Get),
	}))
	mux.Handle("/api/v1/admin/users/{id}/role", methodMux(map[string]http.Handler{
		http.MethodPut: admin(usersHandler.UpdateRole),
	}))
	mux.Handle("/api/v1/admin/users/{id}/active", methodMux(map[string]http.Handler{
		http.MethodPut: admin(usersHandler.SetActive),
	}))
	mux.Handle("/api/v1/admin/audit", methodMux(map[string]http.Handler{
		http.MethodGet: admin(auditHandler.Query),
	}))

	handler := wrap(mux.ServeHTTP,
		middleware.CorrelationID(logger),
		middleware.RequestLogging(logger),
		metrics.HTTPMiddleware,
		middleware.SecurityHeaders(env == "production"),
		middleware.CORS(cfg.CORS, logger),
	)

	return &Router{
		Handler:     handler,
		RiverClient: riverClient,
		Cache:       reportsCache,
		Users:       usersSvc,
		I18n:        i18n,
	}, nil
}

// promotionFanout notifies a promoted attendee by email and publishes the
// promotion to webhook subscribers.
type promotionFanout struct {
	mail   *email.Service
	events *webhooks.Service
}

func (f promotionFanout) WaitlistPromoted(ctx context.Context, entry capacity.WaitlistEntry, lock capacity.Lock) {
	metrics.WaitlistPromotions.Inc()
	if f.mail != nil {
		f.mail.WaitlistPromoted(ctx, entry, lock)
	}
	if f.events != nil {
		f.events.Emit(ctx, "waitlist.promoted", map[string]any{
			"eventId":       entry.EventULID,
			"waitlistEntry": entry.ID,
			"lockId":        lock.ID,
			"expiresAt":     lock.ExpiresAt,
		})
	}
}

// wrap applies middleware around h, first listed outermost.
func wrap(h http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	var handler http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
