package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"recetario/internal/handlers"
	"recetario/internal/middleware"
)

// SetupRoutes registers the account API routes.
func SetupRoutes(r *chi.Mux, uploadRoot string) {
	// Auth routes
	r.Post("/api/auth/register", handlers.Register)
	r.Post("/api/auth/login", handlers.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Post("/api/auth/logout", handlers.Logout)
		r.Get("/api/auth/me", handlers.GetMe)

		// Profile routes
		r.Put("/api/profile", handlers.UpdateProfile)
		r.Post("/api/profile/avatar", handlers.UpdateAvatar)
		r.Post("/api/profile/cover", handlers.UpdateCover)

		// Settings routes
		r.Put("/api/settings/password", handlers.ChangePassword)
		r.Put("/api/settings/email", handlers.ChangeEmail)
		r.Put("/api/settings/username", handlers.ChangeUsername)
		r.Delete("/api/settings/account", handlers.DeleteAccount)
	})

	// Public profiles
	r.Get("/api/users/{username}", handlers.GetProfile)

	// Uploaded assets (avatars, covers)
	fileServer := http.StripPrefix("/uploads/users/", http.FileServer(http.Dir(uploadRoot)))
	r.Get("/uploads/users/*", fileServer.ServeHTTP)
}
