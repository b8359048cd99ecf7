package auth

import (
	"profilebook/errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "MyPasswordIsT00Strong!"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("WrongPassword", hash)
	req.NoError(err)
	req.False(match)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"test@example.com", "alice", "ComplexPass123!"}, false},
		{"Invalid email", RegisterRequest{"notanemail", "alice", "ComplexPass123!"}, true},
		{"Username too short", RegisterRequest{"test@example.com", "al", "ComplexPass123!"}, true},
		{"Username with separator", RegisterRequest{"test@example.com", "al:ice", "ComplexPass123!"}, true},
		{"Password too short", RegisterRequest{"test@example.com", "alice", "Short1!"}, true},
		{"Missing digit", RegisterRequest{"test@example.com", "alice", "NoDigitPass!"}, true},
		{"Missing special char", RegisterRequest{"test@example.com", "alice", "NoSpecialChar123"}, true},
		{"Missing uppercase", RegisterRequest{"test@example.com", "alice", "nouppercase123!"}, true},
		{"Password too long", RegisterRequest{"test@example.com", "alice", strings.Repeat("a", 73)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateContent(t *testing.T) {
	req := require.New(t)
	req.ErrorIs(ValidateContent("", 10), errors.ErrEmptyText)
	req.ErrorIs(ValidateContent("   \n\t", 10), errors.ErrEmptyText)
	req.ErrorIs(ValidateContent("hello world", 5), errors.ErrTextTooLong)
	req.NoError(ValidateContent("héllo", 5))
	req.NoError(ValidateContent(strings.Repeat("x", 10_000), 0))
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret-with-enough-length", time.Hour)

	token, err := issuer.GenerateToken("user-123", []string{RoleAdmin})
	req.NoError(err)

	claims, err := issuer.ValidateToken(token)
	req.NoError(err)
	req.Equal("user-123", claims.UserID)
	req.Equal("user-123", claims.Subject)
	req.Equal([]string{RoleAdmin}, claims.Roles)
}

func TestTokenIssuer_Rejects_Foreign_And_Expired_Tokens(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret-with-enough-length", time.Hour)
	other := NewTokenIssuer("another-secret-entirely", time.Hour)
	expired := NewTokenIssuer("test-secret-with-enough-length", -time.Minute)

	foreign, err := other.GenerateToken("user-123", nil)
	req.NoError(err)
	_, err = issuer.ValidateToken(foreign)
	req.Error(err)

	stale, err := expired.GenerateToken("user-123", nil)
	req.NoError(err)
	_, err = issuer.ValidateToken(stale)
	req.Error(err)

	_, err = issuer.ValidateToken("invalid-token-string")
	req.Error(err)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		cred    Credential
		want    string
		wantErr bool
	}{
		{"canonical claim", Credential{UserID: "u1", Subject: "u1"}, "u1", false},
		{"canonical wins over fallback", Credential{UserID: "u1", Subject: "u2"}, "u1", false},
		{"fallback when canonical absent", Credential{Subject: "u2"}, "u2", false},
		{"both absent", Credential{}, "", true},
		{"malformed canonical does not fall back", Credential{UserID: "u 1", Subject: "u2"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			subject, err := Resolve(tt.cred)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrUnauthenticated)
				req.Empty(subject)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, subject.String())
		})
	}
}

func TestCredentialFromClaims(t *testing.T) {
	req := require.New(t)
	req.Equal(Credential{}, CredentialFromClaims(nil))

	issuer := NewTokenIssuer("test-secret-with-enough-length", time.Hour)
	token, err := issuer.GenerateToken("u9", []string{"user"})
	req.NoError(err)
	claims, err := issuer.ValidateToken(token)
	req.NoError(err)

	cred := CredentialFromClaims(claims)
	req.Equal("u9", cred.UserID)
	req.True(cred.HasRole("user"))
	req.False(cred.HasRole(RoleAdmin))
}

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
