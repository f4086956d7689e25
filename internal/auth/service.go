package auth

import (
	"context"
	"errors"
	"time"

	"github.com/git-voucher/escrow/internal/config"
	"github.com/git-voucher/escrow/internal/identity"
)

var (
	// ErrInvalidToken is returned for malformed, expired or foreign tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned when the token version no longer matches the user.
	ErrTokenRevoked = errors.New("token version invalidated")
)

// Service issues and verifies tokens.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
}

// NewService builds a token service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues tokens for an already authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, accessExp, err := SignHS256(user.ID, user.TokenVersion, kindAccess, s.cfg.AccessTokenTTL, []byte(s.cfg.JWTSecret))
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := SignHS256(user.ID, user.TokenVersion, kindRefresh, s.cfg.RefreshTokenTTL, []byte(s.cfg.RefreshSecret))
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(time.Until(accessExp).Seconds())}, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := ParseAndVerifyHS256(refreshToken, kindRefresh, []byte(s.cfg.RefreshSecret))
	if err != nil {
		return "", 0, ErrInvalidToken
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", 0, err
	}
	signed, _, err := SignHS256(user.ID, user.TokenVersion, kindAccess, s.cfg.AccessTokenTTL, []byte(s.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Verify checks an access token and returns the user it was issued to.
func (s *Service) Verify(ctx context.Context, accessToken string) (identity.User, error) {
	claims, err := ParseAndVerifyHS256(accessToken, kindAccess, []byte(s.cfg.JWTSecret))
	if err != nil {
		return identity.User{}, ErrInvalidToken
	}
	return s.current(ctx, claims)
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	_, err := s.idRepo.BumpTokenVersion(ctx, userID)
	return err
}

func (s *Service) current(ctx context.Context, claims *Claims) (identity.User, error) {
	user, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return identity.User{}, ErrInvalidToken
	}
	if user.TokenVersion != claims.Version {
		return identity.User{}, ErrTokenRevoked
	}
	return user, nil
}
