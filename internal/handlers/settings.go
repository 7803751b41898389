package handlers

import (
	"encoding/json"
	"net/http"

	"recetario/internal/middleware"
	"recetario/internal/models"
)

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ChangeEmailRequest struct {
	Password string `json:"password"`
	NewEmail string `json:"new_email"`
}

type ChangeUsernameRequest struct {
	Password    string `json:"password"`
	NewUsername string `json:"new_username"`
}

type DeleteAccountRequest struct {
	Password      string `json:"password"`
	ConfirmDelete string `json:"confirm_delete"`
}

// ChangePassword verifies the current password and replaces it.
func ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid request body"))
		return
	}

	res, err := accountService.ChangePassword(r.Context(), session, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeInternalError(w, "password change", err)
		return
	}
	writeResult(w, res, http.StatusOK, http.StatusBadRequest)
}

// ChangeEmail verifies the password and replaces the email.
func ChangeEmail(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())

	var req ChangeEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid request body"))
		return
	}

	res, err := accountService.ChangeEmail(r.Context(), session, req.Password, req.NewEmail)
	if err != nil {
		writeInternalError(w, "email change", err)
		return
	}
	writeResult(w, res, http.StatusOK, http.StatusBadRequest)
}

// ChangeUsername verifies the password and renames the account, moving its
// upload folder along with it.
func ChangeUsername(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())

	var req ChangeUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid request body"))
		return
	}

	res, err := accountService.ChangeUsername(r.Context(), session, req.Password, req.NewUsername)
	if err != nil {
		writeInternalError(w, "username change", err)
		return
	}
	writeResult(w, res, http.StatusOK, http.StatusBadRequest)
}

// DeleteAccount permanently removes the caller's account after password and
// typed-phrase confirmation.
func DeleteAccount(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())

	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid request body"))
		return
	}

	res, err := accountService.DeleteAccount(r.Context(), session, req.Password, req.ConfirmDelete)
	if err != nil {
		writeInternalError(w, "account deletion", err)
		return
	}
	if res.Success {
		setSessionCookie(w, "", -1)
	}
	writeResult(w, res, http.StatusOK, http.StatusBadRequest)
}
