package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ridewatch/onboarding/internal/email"
	"github.com/ridewatch/onboarding/internal/featureflags"
	"github.com/ridewatch/onboarding/internal/handler"
	"github.com/ridewatch/onboarding/internal/infrastructure/logger"
	"github.com/ridewatch/onboarding/internal/infrastructure/redis"
	"github.com/ridewatch/onboarding/internal/observability/metrics"
	"github.com/ridewatch/onboarding/internal/observability/tracing"
	"github.com/ridewatch/onboarding/internal/repository"
	"github.com/ridewatch/onboarding/internal/security/audit"
	"github.com/ridewatch/onboarding/internal/security/auth"
	"github.com/ridewatch/onboarding/internal/security/middleware"
	"github.com/ridewatch/onboarding/internal/security/ratelimit"
	"github.com/ridewatch/onboarding/internal/service"
	"github.com/ridewatch/onboarding/internal/worker"
	"github.com/ridewatch/onboarding/pkg/config"
	"github.com/ridewatch/onboarding/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting RideWatch onboarding server", slog.String("environment", cfg.Environment))

	// 3. Tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(context.Background(), log, "ridewatch-onboarding", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Initialize Redis client
	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 5. Initialize PostgreSQL pool
	dbPool, err := database.NewConnectionPool(context.Background(), &database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, log)
	if err != nil {
		log.Error("failed to connect to PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dbPool.Close()

	// 6. Initialize repositories and stores
	userRepo := repository.NewPostgresUserRepository(dbPool.GetDB(), log)
	companyRepo := repository.NewPostgresCompanyRepository(dbPool.GetDB(), log)
	schoolRepo := repository.NewPostgresSchoolRepository(dbPool.GetDB(), log)
	inviteStore := repository.NewRedisInvitationStore(redisClient, log)
	codeStore := repository.NewRedisVerificationStore(redisClient, log)

	// 7. Email service
	sender := email.NewSendGridClient(cfg.SendGridAPIKey, cfg.FromEmail, "RideWatch", log)
	emailService := email.NewService(sender, cfg.ContactEmail, log)
	if cfg.SendGridAPIKey == "" {
		log.Warn("SENDGRID_API_KEY not set, outbound email is disabled")
	}

	// 8. Domain services
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "ridewatch")
	provisioningService := service.NewProvisioningService(userRepo, companyRepo, schoolRepo, log)
	registrationService := service.NewRegistrationService(
		userRepo, codeStore, emailService, tokenManager, cfg.CodeTTL, cfg.SessionTTL, log)
	invitationService := service.NewInvitationService(
		inviteStore, userRepo, provisioningService, emailService, tokenManager,
		cfg.AppBaseURL, cfg.InviteTTL, cfg.SessionTTL, log)

	// 9. Handlers
	authHandler := handler.NewAuthHandler(registrationService, log)
	inviteHandler := handler.NewInviteHandler(invitationService, log)
	schoolHandler := handler.NewSchoolHandler(provisioningService, log)
	emailHandler := handler.NewEmailHandler(emailService, log)
	healthHandler := handler.NewHealthHandler(dbPool, redisClient, log)
	rosterHandler := handler.NewRosterHandler(provisioningService, log, cfg.CORSAllowedOrigins)

	rateLimiter := ratelimit.NewLimiter(100, time.Minute)
	auditLogger := audit.NewLogger(log)

	// 10. Routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/verify", authHandler.Verify)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	mux.HandleFunc("POST /api/invites", inviteHandler.Create)
	mux.HandleFunc("GET /api/invites", inviteHandler.List)
	mux.HandleFunc("GET /api/invites/{token}", inviteHandler.Get)
	mux.HandleFunc("POST /api/invites/{token}/accept", inviteHandler.Accept)

	mux.HandleFunc("GET /api/company", schoolHandler.GetCompany)
	mux.HandleFunc("PUT /api/company", schoolHandler.UpdateCompany)
	mux.HandleFunc("GET /api/schools", schoolHandler.List)
	mux.HandleFunc("POST /api/schools", schoolHandler.Create)
	mux.HandleFunc("PUT /api/schools/{id}", schoolHandler.Update)
	mux.HandleFunc("DELETE /api/schools/{id}", schoolHandler.Delete)
	mux.HandleFunc("GET /api/schools/{id}/drivers", schoolHandler.ListDrivers)
	mux.HandleFunc("POST /api/schools/{id}/drivers", schoolHandler.AssignDriver)
	mux.HandleFunc("DELETE /api/schools/{id}/drivers/{driverId}", schoolHandler.RemoveDriver)
	mux.HandleFunc("PUT /api/schools/{id}/drivers/{driverId}/status", schoolHandler.SetDriverStatus)
	mux.HandleFunc("POST /api/schools/{id}/drivers/{driverId}/ban", schoolHandler.BanDriver)
	mux.HandleFunc("DELETE /api/schools/{id}/drivers/{driverId}/ban", schoolHandler.UnbanDriver)
	mux.HandleFunc("PUT /api/me/current-school", schoolHandler.SetCurrentSchool)

	mux.HandleFunc("POST /api/send-verification-email", emailHandler.SendVerification)
	mux.HandleFunc("POST /api/send-driver-invitation", emailHandler.SendDriverInvitation)
	mux.HandleFunc("POST /api/send-contact-email", emailHandler.SendContact)

	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	if featureflags.Enabled("live_roster") {
		// Browsers cannot set headers on WebSocket dials, so the session
		// token arrives as a query parameter.
		mux.HandleFunc("GET /ws/schools/{id}/drivers", func(w http.ResponseWriter, r *http.Request) {
			claims, err := tokenManager.ValidateToken(r.URL.Query().Get("token"))
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			rosterHandler.Stream(w, r, claims.UserID)
		})
		log.Info("live roster feed enabled")
	}

	// CORS honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain: request ID -> metrics -> content type -> audit -> rate limit -> JWT -> CORS
	rootHandler := withRequestID(
		metrics.HTTPMetricsMiddleware(
			middleware.ValidateJSONContentType(log)(
				middleware.AuditMiddleware(auditLogger)(
					middleware.RateLimitMiddleware(rateLimiter, log)(
						middleware.JWTMiddleware(tokenManager, log)(handlerWithCORS),
					),
				),
			),
		),
		log,
	)

	// 11. Retention sweeper
	sweeper := worker.NewSweeper(inviteStore, codeStore, log, cfg.SweepInterval, cfg.RecordRetention)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)

	// 12. HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(rootHandler, "ridewatch-onboarding"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Duration("invite_ttl", cfg.InviteTTL),
		slog.Duration("code_ttl", cfg.CodeTTL),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
