package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/openplay/sportmatch/internal/config"
	"github.com/openplay/sportmatch/internal/database"
	"github.com/openplay/sportmatch/internal/geo"
	"github.com/openplay/sportmatch/internal/handlers"
	"github.com/openplay/sportmatch/internal/logging"
	"github.com/openplay/sportmatch/internal/middleware"
	"github.com/openplay/sportmatch/internal/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	// Initialize logger
	logger := logging.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.Debug {
		logger.SetLevel(logging.LevelDebug)
		logging.SetDefaultLevel(logging.LevelDebug)
		logger.Debug("Debug logging enabled", map[string]interface{}{
			"env": cfg.Server.Environment,
		})
	}

	if cfg.Search.DefaultRadiusMeters > 0 {
		geo.DefaultRadiusMeters = cfg.Search.DefaultRadiusMeters
	}

	logger.Info("Starting SportMatch server...")

	// Connect to PostgreSQL
	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.Database.DSN(), "migrations")
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	// Connect to Redis
	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	// Initialize services
	dbAdapter := services.NewPoolAdapter(db.Pool)
	redisAdapter := services.NewRedisAdapter(redisDB.Client)

	userService := services.NewUserService(dbAdapter)
	authService := services.NewAuthService(dbAdapter, redisAdapter)
	emailService, err := services.NewEmailService(services.EmailConfig{
		Provider:     cfg.Email.Provider,
		FromAddress:  cfg.Email.FromAddress,
		FromName:     cfg.Email.FromName,
		ResendAPIKey: cfg.Email.ResendAPIKey,
	})
	if err != nil {
		return fmt.Errorf("initializing email service: %w", err)
	}
	sportService := services.NewSportService(dbAdapter)
	profileService := services.NewProfileService(dbAdapter)
	matchService := services.NewMatchService(dbAdapter)
	friendService := services.NewFriendService(dbAdapter)
	locationService := services.NewLocationService(dbAdapter)

	oauthProviders := map[services.Provider]services.OAuthProvider{}
	if cfg.OAuth.Google.Enabled {
		googleProvider, err := services.NewOIDCProvider(context.Background(), services.OIDCProviderConfig{
			Provider:     services.ProviderGoogle,
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
			RedirectURL:  cfg.OAuth.Google.RedirectURL,
			IssuerURL:    cfg.OAuth.Google.IssuerURL,
			Scopes:       cfg.OAuth.Google.Scopes,
		})
		if err != nil {
			return fmt.Errorf("initializing google oidc provider: %w", err)
		}
		oauthProviders[services.ProviderGoogle] = googleProvider
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisDB)
	authHandler := handlers.NewAuthHandler(userService, authService, emailService, oauthProviders, cfg.Server.Secure)
	profileHandler := handlers.NewProfileHandler(profileService)
	sportHandler := handlers.NewSportHandler(sportService)
	matchHandler := handlers.NewMatchHandler(matchService)
	friendHandler := handlers.NewFriendHandler(friendService)
	locationHandler := handlers.NewLocationHandler(locationService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(authService, userService)
	securityHeaders := middleware.NewSecurityHeaders(cfg.Server.Secure)
	requestLogger := middleware.NewRequestLogger(logger)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	// Credential endpoints fail closed: losing Redis briefly beats letting a
	// brute-force run unmetered.
	authRateLimit := resolveAuthRateLimit(cfg, logger, os.LookupEnv)
	authRateLimiter := middleware.NewRateLimiter(redisDB.Client, authRateLimit, 15*time.Minute, "ratelimit:auth:", func(r *http.Request) string {
		return middleware.GetClientIP(r)
	}, false)

	// Proximity queries are the most expensive reads; meter them per user but
	// fail open so a Redis blip does not take search down.
	searchRateLimiter := middleware.NewRateLimiter(redisDB.Client, 120, 1*time.Minute, "ratelimit:search:", func(r *http.Request) string {
		user := handlers.GetUserFromContext(r.Context())
		if user != nil {
			return user.ID.String()
		}
		return ""
	}, true)

	requireAuth := authMiddleware.RequireAuth

	// Set up router
	mux := http.NewServeMux()

	// Health endpoints (no auth, no rate limit)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /ready", healthHandler.Ready)
	mux.HandleFunc("GET /live", healthHandler.Live)

	// Auth endpoints
	mux.Handle("POST /api/auth/signup", authRateLimiter.Middleware(http.HandlerFunc(authHandler.Signup)))
	mux.Handle("POST /api/auth/signin", authRateLimiter.Middleware(http.HandlerFunc(authHandler.Signin)))
	mux.Handle("POST /api/auth/refresh", authRateLimiter.Middleware(http.HandlerFunc(authHandler.Refresh)))
	mux.Handle("POST /api/auth/signout", http.HandlerFunc(authHandler.Signout))
	mux.Handle("POST /api/auth/verify-email", requireAuth(http.HandlerFunc(authHandler.VerifyEmail)))
	mux.Handle("POST /api/auth/resend-verification", requireAuth(authRateLimiter.Middleware(http.HandlerFunc(authHandler.ResendVerification))))
	mux.Handle("GET /api/auth/me", requireAuth(http.HandlerFunc(authHandler.Me)))
	mux.Handle("GET /api/auth/{provider}/start", http.HandlerFunc(authHandler.ProviderStart))
	mux.Handle("GET /api/auth/{provider}/callback", http.HandlerFunc(authHandler.ProviderCallback))

	// Profile endpoints. Search is registered before {id} routes and stays
	// open to anonymous callers.
	mux.Handle("GET /api/profiles/search", searchRateLimiter.Middleware(http.HandlerFunc(profileHandler.Search)))
	mux.Handle("GET /api/profiles/{id}", http.HandlerFunc(profileHandler.Get))
	mux.Handle("PUT /api/profiles/{id}", requireAuth(http.HandlerFunc(profileHandler.Update)))
	mux.Handle("POST /api/profiles/{id}/setup", requireAuth(http.HandlerFunc(profileHandler.Setup)))
	mux.Handle("POST /api/profiles/{id}/sports", requireAuth(http.HandlerFunc(profileHandler.AddSport)))
	mux.Handle("PUT /api/profiles/{id}/sports", requireAuth(http.HandlerFunc(profileHandler.ReplaceSports)))
	mux.Handle("DELETE /api/profiles/{id}/sports/{sportId}", requireAuth(http.HandlerFunc(profileHandler.RemoveSport)))

	// Sport catalog
	mux.Handle("GET /api/sports", http.HandlerFunc(sportHandler.List))
	mux.Handle("GET /api/sports/{id}", http.HandlerFunc(sportHandler.Get))

	// Match endpoints
	mux.Handle("GET /api/matches", http.HandlerFunc(matchHandler.List))
	mux.Handle("POST /api/matches", requireAuth(http.HandlerFunc(matchHandler.Create)))
	mux.Handle("GET /api/matches/{id}", http.HandlerFunc(matchHandler.Get))
	mux.Handle("PUT /api/matches/{id}", requireAuth(http.HandlerFunc(matchHandler.Update)))
	mux.Handle("DELETE /api/matches/{id}", requireAuth(http.HandlerFunc(matchHandler.Cancel)))
	mux.Handle("POST /api/matches/{id}/join", requireAuth(http.HandlerFunc(matchHandler.Join)))
	mux.Handle("POST /api/matches/{id}/leave", requireAuth(http.HandlerFunc(matchHandler.Leave)))

	// Location endpoints
	mux.Handle("GET /api/location/nearby-users", requireAuth(searchRateLimiter.Middleware(http.HandlerFunc(locationHandler.NearbyUsers))))
	mux.Handle("GET /api/location/nearby-matches", requireAuth(searchRateLimiter.Middleware(http.HandlerFunc(locationHandler.NearbyMatches))))
	mux.Handle("GET /api/location/popular-areas", requireAuth(searchRateLimiter.Middleware(http.HandlerFunc(locationHandler.PopularAreas))))
	mux.Handle("PUT /api/location", requireAuth(http.HandlerFunc(locationHandler.UpdateLocation)))

	// Friend endpoints
	mux.Handle("POST /api/friends/requests", requireAuth(http.HandlerFunc(friendHandler.SendRequest)))
	mux.Handle("GET /api/friends/requests", requireAuth(http.HandlerFunc(friendHandler.ListRequests)))
	mux.Handle("PUT /api/friends/requests/{id}/accept", requireAuth(http.HandlerFunc(friendHandler.AcceptRequest)))
	mux.Handle("PUT /api/friends/requests/{id}/reject", requireAuth(http.HandlerFunc(friendHandler.RejectRequest)))
	mux.Handle("GET /api/friends/search", requireAuth(http.HandlerFunc(friendHandler.Search)))
	mux.Handle("GET /api/friends/suggestions", requireAuth(searchRateLimiter.Middleware(http.HandlerFunc(friendHandler.Suggestions))))
	mux.Handle("GET /api/friends", requireAuth(http.HandlerFunc(friendHandler.List)))
	mux.Handle("DELETE /api/friends/{userId}", requireAuth(http.HandlerFunc(friendHandler.Remove)))

	// Build middleware chain (order matters: outermost first)
	var handler http.Handler = mux
	handler = authMiddleware.Authenticate(handler)
	handler = corsHandler.Handler(handler)
	handler = securityHeaders.Apply(handler)
	handler = requestLogger.Apply(handler)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

func resolveAuthRateLimit(cfg *config.Config, logger *logging.Logger, lookupEnv func(string) (string, bool)) int64 {
	authRateLimit := int64(20)
	if cfg.Server.Environment == "development" {
		authRateLimit = 200
		logger.Info("Using development auth rate limit", map[string]interface{}{"limit": authRateLimit})
	}
	if v, ok := lookupEnv("AUTH_RATE_LIMIT"); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			authRateLimit = parsed
			logger.Info("Using auth rate limit from env", map[string]interface{}{"limit": authRateLimit})
		} else {
			logger.Warn("Invalid AUTH_RATE_LIMIT; using default", map[string]interface{}{
				"value": v,
				"limit": authRateLimit,
			})
		}
	}
	return authRateLimit
}
