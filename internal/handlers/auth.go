package handlers

import (
	"encoding/json"
	"net/http"

	"recetario/internal/middleware"
	"recetario/internal/models"
	"recetario/internal/services"
)

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type LoginRequest struct {
	// Identifier accepts a username or an email
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Register handles user registration and signs the new user in.
func Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid request body"))
		return
	}

	res, err := accountService.Register(r.Context(), services.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeInternalError(w, "register", err)
		return
	}

	if res.Session != nil {
		setSessionCookie(w, res.Session.Token, int(cfg.SessionTTL.Seconds()))
	}
	writeResult(w, res, http.StatusCreated, http.StatusBadRequest)
}

// Login authenticates by username or email.
func Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid request body"))
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, models.Fail("Identifier and password are required"))
		return
	}

	res, err := accountService.Login(r.Context(), services.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		writeInternalError(w, "login", err)
		return
	}

	if res.Session != nil {
		setSessionCookie(w, res.Session.Token, int(cfg.SessionTTL.Seconds()))
	}
	writeResult(w, res, http.StatusOK, http.StatusUnauthorized)
}

// Logout destroys the current session.
func Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())
	res := accountService.Logout(r.Context(), session)
	setSessionCookie(w, "", -1)
	writeResult(w, res, http.StatusOK, http.StatusBadRequest)
}

// GetMe returns the session's user record.
func GetMe(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())

	user, err := userStore.FindByID(r.Context(), session.UserID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.Fail("User not found"))
		return
	}

	res := models.OK()
	res.User = user
	writeJSON(w, http.StatusOK, res)
}
