//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	stderrors "errors"
	"fmt"
	"profilebook/auth"
	"profilebook/domain"
	"profilebook/errors"
	"profilebook/repositories"
)

type IAuthService interface {
	Login(email, password string) (auth.Account, error)
	Register(email, username, password string) (auth.Account, error)
	Authenticate(token string) (domain.SubjectID, auth.Credential, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	issuer         *auth.TokenIssuer
}

func NewAuthService(repo repositories.IUserRepository, issuer *auth.TokenIssuer) *AuthService {
	return &AuthService{userRepository: repo, issuer: issuer}
}

func (s *AuthService) Register(email, username, password string) (auth.Account, error) {
	valReq := auth.RegisterRequest{
		Email:    email,
		Username: username,
		Password: password,
	}

	// Business rules are checked before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		if stderrors.Is(err, errors.ErrInvalidPassword) {
			return auth.Account{}, err
		}
		return auth.Account{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	// The repository never sees plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return auth.Account{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(email, username, hashedPassword, []string{"user"})
	if err != nil {
		return auth.Account{}, err
	}
	return s.issue(user)
}

func (s *AuthService) Login(email, password string) (auth.Account, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration
		return auth.Account{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return auth.Account{}, errors.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Authenticate validates a bearer token and resolves the subject it proves.
func (s *AuthService) Authenticate(token string) (domain.SubjectID, auth.Credential, error) {
	if token == "" {
		return "", auth.Credential{}, errors.ErrUnauthenticated
	}
	claims, err := s.issuer.ValidateToken(token)
	if err != nil {
		return "", auth.Credential{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	cred := auth.CredentialFromClaims(claims)
	subject, err := auth.Resolve(cred)
	if err != nil {
		return "", auth.Credential{}, err
	}
	return subject, cred, nil
}

func (s *AuthService) issue(user repositories.User) (auth.Account, error) {
	token, err := s.issuer.GenerateToken(user.ID, user.Roles)
	if err != nil {
		return auth.Account{}, errors.ErrTokenGeneration
	}
	return auth.Account{Token: auth.Token(token), UserID: user.ID, Username: user.Username}, nil
}
