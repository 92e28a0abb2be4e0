package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/services"
)

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, *models.AuthTokens, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.User, *models.AuthTokens, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, req models.ChangePasswordRequest) error
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}

type AuthHandler struct {
	authService authService
	log         *logger.Logger
}

func NewAuthHandler(authService authService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	user, tokens, err := h.authService.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse("User registered successfully", user, tokens))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	user, tokens, err := h.authService.Login(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse("Login successful", user, tokens))
}

// Refresh expects the refresh token as the bearer credential.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Missing refresh token", r))
		return
	}

	accessToken, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_token": accessToken})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Missing refresh token", r))
		return
	}

	if err := h.authService.Logout(r.Context(), token); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetProfile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.authService.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.DeleteAccount(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}

func authResponse(message string, user *models.User, tokens *models.AuthTokens) models.AuthResponse {
	return models.AuthResponse{
		Message:      message,
		User:         user,
		UserID:       user.ID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: chimiddleware.GetReqID(r.Context()),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	resp := errorResp(code, message, r)
	resp.Error.Fields = fields
	return resp
}

func handleServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var (
		validation   *services.ValidationError
		unauthorized *services.UnauthorizedError
		notFound     *services.NotFoundError
		upstream     *services.UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", validation.Error(), validation.Fields, r))
	case errors.As(err, &unauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorized.Message, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, errorResp("UPSTREAM_ERROR", upstream.Message, r))
	default:
		log.Error("unhandled service error",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
