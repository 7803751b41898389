package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"recetario/internal/middleware"
	"recetario/internal/models"
	"recetario/internal/services"
)

type ProfileUpdateRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Bio       string `json:"bio"`
	Country   string `json:"country"`
	City      string `json:"city"`
	Location  string `json:"location"`
	Website   string `json:"website"`
	Instagram string `json:"instagram"`
	Twitter   string `json:"twitter"`
	Facebook  string `json:"facebook"`
	YouTube   string `json:"youtube"`
}

type PublicProfileResponse struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
	// Social graph comes in a later phase; kept as empty placeholders
	Recipes     []any `json:"recipes"`
	IsFollowing bool  `json:"is_following"`
}

// GetProfile returns a public profile by username.
func GetProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := userStore.FindByUsername(r.Context(), username)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.Fail("User not found"))
		return
	}

	// The credential hash is excluded by the model's JSON tags
	writeJSON(w, http.StatusOK, PublicProfileResponse{
		Success: true,
		User:    user,
		Recipes: []any{},
	})
}

// UpdateProfile replaces the caller's editable profile fields.
func UpdateProfile(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())

	var req ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid request body"))
		return
	}

	res, err := accountService.UpdateProfile(r.Context(), session, services.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
		Country:   req.Country,
		City:      req.City,
		Location:  req.Location,
		Website:   req.Website,
		Instagram: req.Instagram,
		Twitter:   req.Twitter,
		Facebook:  req.Facebook,
		YouTube:   req.YouTube,
	})
	if err != nil {
		writeInternalError(w, "profile update", err)
		return
	}
	writeResult(w, res, http.StatusOK, http.StatusBadRequest)
}

// UpdateAvatar ingests a new avatar image for the caller.
func UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	updateAsset(w, r, "avatar")
}

// UpdateCover ingests a new cover image for the caller.
func UpdateCover(w http.ResponseWriter, r *http.Request) {
	updateAsset(w, r, "cover")
}

func updateAsset(w http.ResponseWriter, r *http.Request, field string) {
	session, _ := middleware.SessionFromContext(r.Context())

	// Buffer the multipart form; anything above the cap spills to disk
	if err := r.ParseMultipartForm(cfg.MaxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid multipart form"))
		return
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.Fail("No image was uploaded"))
		return
	}
	defer file.Close()

	var res *models.Result
	if field == "avatar" {
		res, err = accountService.UpdateAvatar(r.Context(), session, file, header)
	} else {
		res, err = accountService.UpdateCover(r.Context(), session, file, header)
	}
	if err != nil {
		writeInternalError(w, field+" update", err)
		return
	}
	writeResult(w, res, http.StatusOK, http.StatusBadRequest)
}
