package auth

import (
	"context"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"qrattend/internal/apperr"
)

// User is an account that can authenticate.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Name         string
}

// UserStore resolves accounts and persists refresh tokens for rotation
// checks.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
}

// Service handles credential verification and token issuance.
type Service struct {
	store      UserStore
	issuer     string
	signingKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService creates an auth service.
func NewService(store UserStore, issuer, signingKey string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		issuer:     issuer,
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Login verifies credentials and issues a token pair. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if email == "" || password == "" {
		return TokenPair{}, apperr.New(apperr.BadRequest, "email and password are required")
	}
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.Internal, "user lookup failed", err)
	}
	if user == nil {
		return TokenPair{}, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return TokenPair{}, apperr.New(apperr.Unauthorized, "invalid credentials")
	}

	tokens, err := Issue(user.ID, user.Role, s.issuer, s.signingKey, s.accessTTL, s.refreshTTL)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.Internal, "token issue failed", err)
	}
	if err := s.store.SaveRefreshToken(ctx, user.ID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		log.Printf("refresh token save failed for %s: %v", user.ID, err)
	}
	return tokens, nil
}

// HashPassword hashes a password for storage; used by seeding tools.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
