package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/git-voucher/escrow/internal/ledger"
)

const minSecretLen = 8

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)

// Service manages identity lifecycle.
type Service struct {
	repo  Repository
	books ledger.Ledger
}

// NewService creates a new identity service. Registered users get a ledger
// account in books.
func NewService(repo Repository, books ledger.Ledger) *Service {
	return &Service{repo: repo, books: books}
}

// Register creates a user and stores a hashed secret.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	if !handlePattern.MatchString(creds.Handle) {
		return User{}, errors.New("handle must be 1-39 letters, digits or dashes")
	}
	if len(creds.Secret) < minSecretLen {
		return User{}, fmt.Errorf("secret must be at least %d characters", minSecretLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Secret), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:         uuid.New().String(),
		Handle:     creds.Handle,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	if s.books != nil {
		if err := s.books.EnsureAccount(ctx, ledger.IdentityAddress(user.ID)); err != nil {
			return User{}, fmt.Errorf("open account: %w", err)
		}
	}

	return user, nil
}

// Authenticate verifies credentials and records the login.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByHandle(ctx, creds.Handle)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.SecretHash, []byte(creds.Secret)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.LastLogin = &now
	return user, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// Balance returns the funds the user's ledger account holds.
func (s *Service) Balance(ctx context.Context, id string) (uint64, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return 0, err
	}
	return s.books.Balance(ctx, ledger.IdentityAddress(id))
}
