package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"geminichat-backend/internal/handlers"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	chatHandler *handlers.ChatHandler,
	statusHandler *handlers.StatusHandler,
	wsHandler http.HandlerFunc,
	corsOrigins []string,
	log *logger.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(corsOrigins))

	r.Get("/health", statusHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusHandler.Status)
		r.Get("/models", statusHandler.Models)

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)

			// Both read the refresh token from the Authorization header.
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Get("/profile", authHandler.Profile)
				r.Delete("/profile", authHandler.DeleteAccount)
				r.Put("/password", authHandler.ChangePassword)
			})
		})

		// ──── Chat Routes ────
		r.Route("/chat/conversations", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", chatHandler.ListConversations)
			r.Post("/", chatHandler.CreateConversation)
			r.Patch("/{id}", chatHandler.RenameConversation)
			r.Delete("/{id}", chatHandler.DeleteConversation)
			r.Get("/{id}/messages", chatHandler.ListMessages)
			r.Post("/{id}/messages", chatHandler.SendMessage)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHandler)
	})

	return r
}
