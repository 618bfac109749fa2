package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"chathub-backend/internal/apperr"
	"chathub-backend/internal/jwt"
	"chathub-backend/internal/models"
	"chathub-backend/internal/store"
	"chathub-backend/internal/validator"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Email    string `json:"email" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResult struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type AuthService struct {
	store  *store.Store
	issuer *jwt.Issuer
	ids    IDGenerator
	sugar  *zap.SugaredLogger
	now    func() time.Time
}

func NewAuthService(st *store.Store, issuer *jwt.Issuer, ids IDGenerator, sugar *zap.SugaredLogger) *AuthService {
	return &AuthService{store: st, issuer: issuer, ids: ids, sugar: sugar, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validator.Struct(in); err != nil {
		return nil, apperr.Invalid(err.Error())
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)

	if err := validator.Email(in.Email); err != nil {
		return nil, invalid(err)
	}
	if err := validator.Username(in.Username); err != nil {
		return nil, invalid(err)
	}
	if err := validator.Password(in.Password); err != nil {
		return nil, invalid(err)
	}

	existing, err := s.store.FindUserByEmailOrUsername(ctx, in.Email, in.Username)
	if err == nil {
		if existing.Email == in.Email {
			return nil, apperr.Duplicate("Email already in use")
		}
		return nil, apperr.Duplicate("Username already taken")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, internal(s.sugar, err, "look up existing user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, internal(s.sugar, err, "hash password")
	}

	userID, err := s.ids.Generate()
	if err != nil {
		return nil, internal(s.sugar, err, "generate user id")
	}

	user := &models.User{
		ID:           userID,
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		Status:       models.StatusOnline,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// lost a race with a concurrent registration
			return nil, apperr.Duplicate("Email or username already in use")
		}
		return nil, internal(s.sugar, err, "create user")
	}

	s.sugar.Infof("Registered user %d (%s)", user.ID, user.Username)
	return s.issue(ctx, user)
}

// Login accepts either the email or the username in the email field.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validator.Struct(in); err != nil {
		return nil, apperr.Invalid(err.Error())
	}

	login := strings.TrimSpace(in.Email)
	user, err := s.store.FindUserByEmailOrUsername(ctx, strings.ToLower(login), login)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthenticated("Invalid credentials")
	} else if err != nil {
		return nil, internal(s.sugar, err, "look up user")
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(in.Password)); err != nil {
		s.sugar.Debugf("Wrong password for user %d", user.ID)
		return nil, apperr.Unauthenticated("Invalid credentials")
	}

	if err := s.store.UpdateUserStatus(ctx, user.ID, models.StatusOnline); err != nil {
		return nil, internal(s.sugar, err, "update user status")
	}
	user.Status = models.StatusOnline

	return s.issue(ctx, user)
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	accessToken, err := s.issuer.AccessToken(user.ID, user.Username)
	if err != nil {
		return nil, internal(s.sugar, err, "sign access token")
	}

	refreshToken, expiresAt, err := s.issuer.RefreshToken(user.ID, user.Username)
	if err != nil {
		return nil, internal(s.sugar, err, "sign refresh token")
	}

	err = s.store.CreateRefreshToken(ctx, &models.RefreshToken{
		TokenHash: jwt.HashToken(refreshToken),
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, internal(s.sugar, err, "store refresh token")
	}

	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh issues a new access token for a valid, stored refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperr.Invalid("Refresh token is required")
	}

	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return "", apperr.Unauthenticated("Invalid or expired refresh token")
	}

	tokenHash := jwt.HashToken(refreshToken)
	stored, err := s.store.FindRefreshToken(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperr.Unauthenticated("Invalid refresh token")
	} else if err != nil {
		return "", internal(s.sugar, err, "look up refresh token")
	}

	if stored.Expired(s.now()) {
		if err := s.store.DeleteRefreshToken(ctx, tokenHash); err != nil {
			s.sugar.Errorw("Couldn't delete expired refresh token", "userID", stored.UserID, "error", err)
		}
		return "", apperr.Unauthenticated("Refresh token expired")
	}

	accessToken, err := s.issuer.AccessToken(claims.UserID, claims.Username)
	if err != nil {
		return "", internal(s.sugar, err, "sign access token")
	}
	return accessToken, nil
}

// Logout revokes the caller's refresh token and marks them offline. A token
// belonging to someone else is left alone.
func (s *AuthService) Logout(ctx context.Context, userID int64, refreshToken string) error {
	if refreshToken != "" {
		tokenHash := jwt.HashToken(refreshToken)

		stored, err := s.store.FindRefreshToken(ctx, tokenHash)
		switch {
		case err == nil && stored.UserID == userID:
			if err := s.store.DeleteRefreshToken(ctx, tokenHash); err != nil {
				return internal(s.sugar, err, "delete refresh token")
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return internal(s.sugar, err, "look up refresh token")
		}
	}

	err := s.store.UpdateUserStatus(ctx, userID, models.StatusOffline)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Missing("User not found")
	} else if err != nil {
		return internal(s.sugar, err, "update user status")
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Missing("User not found")
	} else if err != nil {
		return nil, internal(s.sugar, err, "load user")
	}
	return user, nil
}

// RunTokenJanitor deletes expired refresh tokens every interval until ctx is done.
func (s *AuthService) RunTokenJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.PurgeExpiredTokens(ctx)
		}
	}
}

func (s *AuthService) PurgeExpiredTokens(ctx context.Context) {
	n, err := s.store.DeleteExpiredRefreshTokens(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.sugar.Errorw("Couldn't delete expired refresh tokens", "error", err)
		}
		return
	}
	if n > 0 {
		s.sugar.Infof("Deleted %d expired refresh tokens", n)
	}
}
