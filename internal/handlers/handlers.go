package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"recetario/internal/config"
	"recetario/internal/middleware"
	"recetario/internal/models"
	"recetario/internal/services"
)

var (
	accountService *services.AccountService
	userStore      services.UserStore
	cfg            *config.Config
)

// Init wires the handler package to its services.
func Init(c *config.Config, accounts *services.AccountService, users services.UserStore) {
	cfg = c
	accountService = accounts
	userStore = users
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeResult writes an operation result, failStatus being used when the
// operation did not succeed.
func writeResult(w http.ResponseWriter, res *models.Result, okStatus, failStatus int) {
	if res.Success {
		writeJSON(w, okStatus, res)
		return
	}
	writeJSON(w, failStatus, res)
}

// writeInternalError logs the detail for operators and sends a generic
// message to the client.
func writeInternalError(w http.ResponseWriter, op string, err error) {
	log.Printf("❌ %s failed: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, models.Fail("Something went wrong. Try again later."))
}

// setSessionCookie installs or clears the session cookie.
func setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}
