//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=../mocks/mock_auth_service.go -package=mocks
package auth

import (
	stderrors "errors"
	"fmt"
	"time"

	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/store"

	"github.com/google/uuid"
)

type IAuthService interface {
	Register(username, name, password string) (Token, error)
	Login(username, password string) (Token, error)
	Authenticate(token string) (string, error)
}

type Token string

// AuthService issues connection tokens. The viewer id it authenticates is
// then passed explicitly through every query and command boundary; there is
// no ambient current-user lookup anywhere downstream.
type AuthService struct {
	store  *store.Store
	tokens *Tokens
}

func NewAuthService(s *store.Store, tokens *Tokens) *AuthService {
	return &AuthService{store: s, tokens: tokens}
}

func (s *AuthService) Register(username, name, password string) (Token, error) {
	req := RegisterRequest{Username: username, Name: name, Password: password}
	// Validate before any expensive cryptographic operation.
	if err := ValidateRegister(req); err != nil {
		if stderrors.Is(err, errors.ErrInvalidPassword) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	account := store.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Profile:      domain.Profile{Name: name},
		PasswordHash: hashed,
		CreatedAt:    time.Now().UTC(),
	}
	if err = s.store.CreateAccount(account); err != nil {
		return "", err
	}

	token, err := s.tokens.Generate(account.ID)
	return Token(token), err
}

func (s *AuthService) Login(username, password string) (Token, error) {
	account, err := s.store.GetAccountByUsername(username)
	if err != nil {
		// Generic error to prevent user enumeration.
		return "", errors.ErrInvalidCredentials
	}

	match, err := ComparePassword(password, account.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(account.ID)
	return Token(token), err
}

// Authenticate resolves a token to a viewer id. Callers holding no valid
// token proceed with an empty viewer id and see empty feeds, never errors.
func (s *AuthService) Authenticate(token string) (string, error) {
	return s.tokens.Validate(token)
}
