package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/quillpress/apiserver/internal/services"
)

// AuthHandler provides registration, login and logout endpoints.
type AuthHandler struct {
	authService       *services.AuthService
	userService       *services.UserService
	adminRegistration bool
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService, adminRegistration bool) *AuthHandler {
	return &AuthHandler{
		authService:       authService,
		userService:       userService,
		adminRegistration: adminRegistration,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(
	r chi.Router,
	authService *services.AuthService,
	userService *services.UserService,
	adminRegistration bool,
) {
	handler := NewAuthHandler(authService, userService, adminRegistration)

	r.Post("/register/user", handler.RegisterUser)
	r.Post("/register/admin", handler.RegisterAdmin)
	r.Post("/login", handler.Login)
	r.Get("/logout", handler.Logout)
}

func (h *AuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrors(w, r, err)
		return
	}
	if blank(req.Username) || blank(req.Email) || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Please provide username, email and password")
		return
	}

	user, err := h.userService.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeErrors(w, r, err)
		return
	}

	writeMessage(w, http.StatusCreated, "user registered with ID: "+user.ID.Hex())
}

func (h *AuthHandler) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.adminRegistration {
		writeMessage(w, http.StatusForbidden, "Admin registration is disabled")
		return
	}

	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrors(w, r, err)
		return
	}
	if blank(req.Username) || blank(req.Email) || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Please provide username, email, admin status and password")
		return
	}
	if req.IsAdmin == nil || !*req.IsAdmin {
		writeMessage(w, http.StatusBadRequest, "Please set admin status to true")
		return
	}

	user, err := h.userService.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		IsAdmin:  true,
	})
	if err != nil {
		writeErrors(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().Str("user", user.ID.Hex()).Msg("admin registered")
	writeMessage(w, http.StatusCreated, "admin registered with ID: "+user.ID.Hex())
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrors(w, r, err)
		return
	}
	if (blank(req.Username) && blank(req.Email)) || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Please provide username/email and password")
		return
	}

	token, err := h.authService.Login(r.Context(), services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, services.ErrIncorrectCredentials) {
			writeMessage(w, http.StatusUnauthorized, "Incorrect credentials")
			return
		}
		writeErrors(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: token})
}

// Logout revokes the bearer token of the current request. Only the header
// is checked; malformed, forged or expired tokens are revoked as given.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	token := bearerToken(header)
	if token == "" {
		writeMessage(w, http.StatusForbidden, msgInvalidToken)
		return
	}

	if err := h.authService.Logout(r.Context(), token); err != nil {
		writeErrors(w, r, err)
		return
	}

	writeMessage(w, http.StatusOK, "Logout successful")
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  *bool  `json:"isAdmin"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}
