package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/health"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/handler"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

type Dependencies struct {
	AuthHandler           *handler.AuthHandler
	LoaderHandler         *handler.LoaderHandler
	LicenseHandler        *handler.LicenseHandler
	AdminHandler          *handler.AdminHandler
	SessionHandler        *handler.SessionHandler
	JWTManager            *security.JWTManager
	AccessGuard           service.AccessGuard
	CORSOrigins           []string
	APIRateLimitRPM       int
	AuthRateLimitRPM      int
	HandshakeRateLimitRPM int
	GlobalRateLimiter     RateLimiterFunc
	AuthRateLimiter       RateLimiterFunc
	HandshakeRateLimiter  RateLimiterFunc
	Readiness             *health.ProbeRunner
	MetricsHandler        http.Handler
	EnableOTelHTTP        bool
}

type RateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}
	handshakeLimiter := dep.HandshakeRateLimiter
	if handshakeLimiter == nil {
		handshakeLimiter = middleware.NewRateLimiter(dep.HandshakeRateLimitRPM, time.Minute).Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.JWTManager, dep.AccessGuard)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})
	if dep.MetricsHandler != nil {
		r.Handle("/metrics", dep.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
		r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
		r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
		r.With(requireAuth).Post("/logout", dep.AuthHandler.Logout)
		r.With(requireAuth).Get("/verify", dep.AuthHandler.Verify)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireCapability(domain.CapSessionSelf))
			r.Get("/sessions", dep.SessionHandler.List)
			r.Delete("/sessions/{id}", dep.SessionHandler.Revoke)
		})
	})

	r.Route("/loader", func(r chi.Router) {
		r.With(handshakeLimiter).Post("/handshake", dep.LoaderHandler.Handshake)
		r.With(authLimiter).Post("/login", dep.LoaderHandler.Login)
		r.Post("/heartbeat", dep.LoaderHandler.Heartbeat)
		r.Get("/ban-status/{userId}", dep.LoaderHandler.BanStatus)
	})

	r.Route("/licenses", func(r chi.Router) {
		r.Use(requireAuth)
		r.With(authLimiter).Post("/activate", dep.LicenseHandler.Activate)
		r.Get("/validate", dep.LicenseHandler.Validate)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAuth)
		r.With(middleware.RequireCapability(domain.CapLicenseGenerate)).Post("/licenses", dep.AdminHandler.CreateLicense)
		r.With(middleware.RequireCapability(domain.CapLicenseRead)).Get("/licenses", dep.AdminHandler.ListLicenses)
		r.With(middleware.RequireCapability(domain.CapLicenseRevoke)).Post("/licenses/{key}/revoke", dep.AdminHandler.RevokeLicense)
		r.With(middleware.RequireCapability(domain.CapLicenseRevoke)).Delete("/licenses/{key}/devices/{fingerprint}", dep.AdminHandler.DeactivateDevice)
		r.With(middleware.RequireCapability(domain.CapUserBan)).Post("/users/{id}/ban", dep.AdminHandler.BanUser)
		r.With(middleware.RequireCapability(domain.CapUserBan)).Post("/users/{id}/unban", dep.AdminHandler.UnbanUser)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
