package services

import (
	"profilebook/auth"
	"profilebook/domain"
	"profilebook/errors"
	"profilebook/mocks"
	"profilebook/repositories"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSecret = "test-secret"

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	issuer := auth.NewTokenIssuer(testSecret, 24*time.Hour)
	svc := NewAuthService(mockRepo, issuer)

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "ComplexPass123!"

		// Expect CreateUser to be called with a hashed password (not the plain one)
		mockRepo.EXPECT().
			CreateUser(email, "tester", gomock.Not(password), []string{"user"}).
			Return(repositories.User{ID: "user-uuid", Username: "tester", Roles: []string{"user"}}, nil).
			Times(1)

		account, err := svc.Register(email, "tester", password)

		req.NoError(err)
		req.NotEmpty(account.Token)
		req.Equal("user-uuid", account.UserID)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		// Repository should NEVER be called
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register("test@example.com", "tester", "alllowercase123")
		req.ErrorIs(err, errors.ErrInvalidPassword)

		_, err = svc.Register("test@example.com", "tester", "simple")
		req.ErrorIs(err, errors.ErrInvalidPayload)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateUser("duplicate@example.com", "tester", gomock.Any(), gomock.Any()).
			Return(repositories.User{}, errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register("duplicate@example.com", "tester", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	issuer := auth.NewTokenIssuer(testSecret, 24*time.Hour)
	svc := NewAuthService(mockRepo, issuer)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"
		password := "Secret123456!"

		hashedPassword, err := auth.HashPassword(password)
		req.NoError(err)
		storedUser := repositories.User{
			ID:           "uuid-123",
			Email:        email,
			Username:     "user",
			PasswordHash: hashedPassword,
			Roles:        []string{"user"},
		}

		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(storedUser, nil).
			Times(1)

		account, err := svc.Login(email, password)
		req.NoError(err)
		req.Equal("user", account.Username)

		// The token resolves back to the stored user
		subject, cred, err := svc.Authenticate(account.Token.String())
		req.NoError(err)
		req.Equal(domain.SubjectID(storedUser.ID), subject)
		req.Equal([]string{"user"}, cred.Roles)
	})

	t.Run("should return invalid credentials when password matches nothing", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"

		hashedPassword, err := auth.HashPassword("CorrectPassword123!")
		req.NoError(err)

		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(repositories.User{Email: email, PasswordHash: hashedPassword}, nil).
			Times(1)

		_, err = svc.Login(email, "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when user is not found", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("unknown@example.com").
			Return(repositories.User{}, errors.ErrNotFound).
			Times(1)

		_, err := svc.Login("unknown@example.com", "anyPassword")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}

func TestAuthService_Authenticate_Fails_Closed(t *testing.T) {
	req := require.New(t)
	svc := NewAuthService(nil, auth.NewTokenIssuer(testSecret, time.Hour))
	foreign := auth.NewTokenIssuer("another-secret", time.Hour)

	token, err := foreign.GenerateToken("alice", nil)
	req.NoError(err)

	_, _, err = svc.Authenticate(token)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	_, _, err = svc.Authenticate("")
	req.ErrorIs(err, errors.ErrUnauthenticated)
}
