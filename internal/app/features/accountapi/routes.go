// internal/app/features/accountapi/routes.go
package accountapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/oriundostartup/libreta/internal/app/system/auth"
)

// Routes returns the account API, mounted under /accounts.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireSignedIn)
		r.Get("/me", h.ServeMe)
		r.Post("/me/sync", h.HandleSync)
		r.Post("/me/profile", h.HandleCompleteProfile)
		r.Get("/me/activity", h.ServeActivity)
	})
	return r
}
