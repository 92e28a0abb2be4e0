package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/repository"
)

const (
	minPasswordLen   = 6
	maxPasswordLen   = 100
	maxEmailLen      = 120
	maxUsernameBase  = 70
	registerAttempts = 5
)

type userRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type tokenRevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthService struct {
	userRepo   userRepository
	tokens     tokenRevocationStore
	jwt        *middleware.JWTAuth
	bcryptCost int
	dummyHash  []byte
	log        *logger.Logger
}

func NewAuthService(userRepo userRepository, tokens tokenRevocationStore, jwt *middleware.JWTAuth, bcryptCost int, log *logger.Logger) (*AuthService, error) {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	// Compared against on unknown emails so both login failures cost the same.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	return &AuthService{
		userRepo:   userRepo,
		tokens:     tokens,
		jwt:        jwt,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
		log:        log.With("component", "auth"),
	}, nil
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var errInvalidCredentials = &UnauthorizedError{Message: "Invalid email or password"}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, *models.AuthTokens, error) {
	email := strings.TrimSpace(req.Email)

	fieldErrors := make(map[string]string)
	switch {
	case email == "":
		fieldErrors["email"] = "Email is required"
	case utf8.RuneCountInString(email) > maxEmailLen:
		fieldErrors["email"] = fmt.Sprintf("Email must be at most %d characters", maxEmailLen)
	case !emailRegex.MatchString(email):
		fieldErrors["email"] = "Invalid email format"
	}
	if err := validatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if len(fieldErrors) > 0 {
		return nil, nil, &ValidationError{Message: "Validation failed", Fields: fieldErrors}
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, nil, fieldError("email", "Email already exists")
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	base := usernameBase(email)
	var user *models.User
	for attempt := 0; attempt < registerAttempts; attempt++ {
		username, err := s.uniqueUsername(ctx, base)
		if err != nil {
			return nil, nil, err
		}

		user = &models.User{Username: username, Email: email, PasswordHash: string(hash)}
		err = s.userRepo.Create(ctx, user)
		if errors.Is(err, repository.ErrDuplicateUsername) {
			// lost a race with a concurrent registration; pick again
			user = nil
			continue
		}
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, fieldError("email", "Email already exists")
		}
		if err != nil {
			return nil, nil, err
		}
		break
	}
	if user == nil {
		return nil, nil, fmt.Errorf("could not allocate a username for %q after %d attempts", base, registerAttempts)
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, tokens, nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.User, *models.AuthTokens, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, nil, &ValidationError{Message: "Email and password are required"}
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			return nil, nil, errInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, nil, errInvalidCredentials
	}

	if !user.IsActive {
		return nil, nil, &UnauthorizedError{Message: "Account is disabled"}
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Refresh mints a new access token for the identity in a valid, unrevoked refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwt.ParseToken(refreshToken, middleware.TokenTypeRefresh)
	if err != nil {
		return "", &UnauthorizedError{Message: "Invalid or expired refresh token"}
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check refresh token: %w", err)
	}
	if revoked {
		return "", &UnauthorizedError{Message: "Invalid or expired refresh token"}
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return "", &UnauthorizedError{Message: "Invalid or expired refresh token"}
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &UnauthorizedError{Message: "Invalid or expired refresh token"}
		}
		return "", err
	}
	if !user.IsActive {
		return "", &UnauthorizedError{Message: "Account is disabled"}
	}

	accessToken, err := s.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return accessToken, nil
}

// Logout revokes the refresh token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.jwt.ParseToken(refreshToken, middleware.TokenTypeRefresh)
	if err != nil {
		return &UnauthorizedError{Message: "Invalid or expired refresh token"}
	}

	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := s.tokens.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req models.ChangePasswordRequest) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return &UnauthorizedError{Message: "Current password is incorrect"}
	}

	if err := validatePassword(req.NewPassword); err != nil {
		return fieldError("new_password", err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.userRepo.UpdatePassword(ctx, userID, string(hash))
}

// DeleteAccount removes the user together with every conversation and message they own.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	err := s.userRepo.Delete(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: "User not found"}
	}
	return err
}

func (s *AuthService) issueTokens(user *models.User) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.jwt.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &models.AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// uniqueUsername returns base, or base followed by the first counter (1, 2, ...)
// that no existing user holds.
func (s *AuthService) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for counter := 1; ; counter++ {
		exists, err := s.userRepo.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, counter)
	}
}

func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if utf8.RuneCountInString(local) > maxUsernameBase {
		local = string([]rune(local)[:maxUsernameBase])
	}
	return local
}

func validatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < minPasswordLen {
		return fmt.Errorf("Password must be at least %d characters long", minPasswordLen)
	}
	if n > maxPasswordLen {
		return fmt.Errorf("Password must be at most %d characters long", maxPasswordLen)
	}
	return nil
}
