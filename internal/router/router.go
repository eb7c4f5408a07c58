package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-creator-hub/internal/config"
	"go-creator-hub/internal/handler"
	"go-creator-hub/internal/middleware"
	"go-creator-hub/internal/model"
)

type Handlers struct {
	Auth           *handler.AuthHandler
	CompanyProfile *handler.ProfileHandler
	CreatorProfile *handler.ProfileHandler
	Chat           *handler.ChatHandler
	Health         *handler.HealthHandler
	// Realtime serves the STOMP WebSocket endpoint.
	Realtime http.Handler
	Metrics  http.Handler
	// AvatarDir is served read-only under /avatars/.
	AvatarDir string
}

func New(cfg *config.Config, logger *slog.Logger, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Health)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}
	r.Handle(cfg.WSPath, h.Realtime)
	if h.AvatarDir != "" {
		r.Handle("/avatars/*", http.StripPrefix("/avatars/", http.FileServer(http.Dir(h.AvatarDir))))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Auth.Login)
			r.Post("/register", h.Auth.Register)
			r.Post("/verify-email", h.Auth.VerifyEmail)
			r.Post("/resend-verification", h.Auth.ResendVerification)
			r.Post("/forgot-password", h.Auth.ForgotPassword)
			r.Post("/reset-password", h.Auth.ResetPassword)
		})

		api.Route("/company/profile", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleCompany))
			r.Get("/", h.CompanyProfile.Get)
			r.Put("/", h.CompanyProfile.Update)
			r.Put("/avatar", h.CompanyProfile.UploadAvatar)
		})

		api.Route("/content-creator/profile", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleContentCreator))
			r.Get("/", h.CreatorProfile.Get)
			r.Put("/", h.CreatorProfile.Update)
			r.Put("/avatar", h.CreatorProfile.UploadAvatar)
		})

		api.Route("/chat", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/conversations", h.Chat.List)
			r.Post("/conversations", h.Chat.Start)
			r.Get("/conversations/{conversation_id}/messages", h.Chat.Messages)
			r.Post("/conversations/{conversation_id}/read", h.Chat.MarkRead)
			r.Get("/unread-count", h.Chat.UnreadCount)
		})
	})

	return r
}
