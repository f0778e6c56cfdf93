package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/auth"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/services"
)

// RegisterUserRequest is the request body for creating a user.
type RegisterUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the request body for logging in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserCreatedResponse is returned after registration.
type UserCreatedResponse struct {
	Message string    `json:"message"`
	UserID  uuid.UUID `json:"userId"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Message string    `json:"message"`
	UserID  uuid.UUID `json:"userId"`
	Token   string    `json:"token"`
}

// UsersHandler handles user registration, login and lookup.
type UsersHandler struct {
	userService services.UserService
	tokens      auth.TokenIssuer
	cookies     auth.CookieSettings
	logger      *zap.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(userService services.UserService, tokens auth.TokenIssuer, cookies auth.CookieSettings, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{
		userService: userService,
		tokens:      tokens,
		cookies:     cookies,
		logger:      logger,
	}
}

// RegisterRoutes registers the users handler's routes on the given mux.
func (h *UsersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/users", h.Register)
	mux.HandleFunc("POST /api/users/register", h.Register)
	mux.HandleFunc("POST /api/users/login", h.Login)
	mux.HandleFunc("GET /api/users/{id}", authMiddleware.RequireAuth(h.Get))
}

// Register handles POST /api/users
// Creates the user and sets the token cookie.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "Username, email, and password are required."); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	user, err := h.userService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			if err := ErrorResponse(w, http.StatusConflict, "user_exists", "User with this email already exists."); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		WriteServiceError(w, err, "user", h.logger)
		return
	}

	token, expires, err := h.tokens.Issue(user)
	if err != nil {
		WriteServiceError(w, err, "user", h.logger)
		return
	}
	http.SetCookie(w, h.cookies.TokenCookie(token, expires))

	response := UserCreatedResponse{
		Message: "User created successfully.",
		UserID:  user.ID,
	}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Login handles POST /api/users/login
func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}

	user, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteServiceError(w, err, "user", h.logger)
		return
	}

	token, expires, err := h.tokens.Issue(user)
	if err != nil {
		WriteServiceError(w, err, "user", h.logger)
		return
	}
	http.SetCookie(w, h.cookies.TokenCookie(token, expires))

	response := LoginResponse{
		Message: "Login successful.",
		UserID:  user.ID,
		Token:   token,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Get handles GET /api/users/{id}
// The password hash is never serialized.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		WriteServiceError(w, err, "user", h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, user); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
