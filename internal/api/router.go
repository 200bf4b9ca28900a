package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/session", apiHandler.SessionHandler)
			r.Put("/session/active", apiHandler.SelectChatHandler)

			r.Get("/chats", apiHandler.ListChatsHandler)
			r.Post("/chats", apiHandler.CreateChatHandler)
			r.Patch("/chats/{chatID}", apiHandler.RenameChatHandler)
			r.Delete("/chats/{chatID}", apiHandler.DeleteChatHandler)
			r.Get("/chats/{chatID}/messages", apiHandler.ListMessagesHandler)
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.sendLimiter.Middleware)
				r.Post("/chats/{chatID}/messages", apiHandler.PostMessageHandler)
				r.Post("/messages", apiHandler.PostMessageHandler)
			})

			// The API key is shared by every user of this deployment.
			r.Get("/settings/api-key", apiHandler.GetAPIKeyHandler)
			r.Put("/settings/api-key", apiHandler.SetAPIKeyHandler)
		})
	})

	return r
}
