package auth

import (
	"profilebook/domain"
	"profilebook/errors"
	"slices"
)

const RoleAdmin = "admin"

// Credential is the verified identity proof handed over by the transport layer.
type Credential struct {
	UserID  string // canonical claim
	Subject string // fallback claim, same namespace as UserID
	Roles   []string
}

func CredentialFromClaims(claims *CustomClaims) Credential {
	if claims == nil {
		return Credential{}
	}
	return Credential{UserID: claims.UserID, Subject: claims.Subject, Roles: claims.Roles}
}

// Resolve maps a credential to the subject used as the fan-out key.
// It fails closed: a missing or malformed claim never yields a guessed identity.
func Resolve(cred Credential) (domain.SubjectID, error) {
	raw := cred.UserID
	if raw == "" {
		raw = cred.Subject
	}
	subject, err := domain.ParseSubjectID(raw)
	if err != nil {
		return "", errors.ErrUnauthenticated
	}
	return subject, nil
}

func (c Credential) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}
