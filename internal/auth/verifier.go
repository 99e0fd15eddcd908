package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/bearer-auth/internal/domain"
	"github.com/spec-kit/bearer-auth/internal/repository"
)

// ErrInvalidCredentials covers both unknown accounts and wrong secrets.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials is a login attempt. Secret is never logged or stored.
type Credentials struct {
	Account string
	Secret  string
}

// AccountLookup is the read side of the account store used by authentication.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByAccount(ctx context.Context, account string) (*domain.User, error)
}

// CredentialVerifier checks credentials against the account store.
type CredentialVerifier struct {
	accounts  AccountLookup
	hasher    PasswordHasher
	dummyHash string
}

// NewCredentialVerifier builds a verifier. A throwaway hash is computed once
// so that unknown accounts pay the same hashing cost as known ones.
func NewCredentialVerifier(accounts AccountLookup, hasher PasswordHasher) (*CredentialVerifier, error) {
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare credential verifier: %w", err)
	}
	return &CredentialVerifier{accounts: accounts, hasher: hasher, dummyHash: dummy}, nil
}

// Verify returns the principal for valid credentials or ErrInvalidCredentials.
// Store failures other than not-found are returned as-is.
func (v *CredentialVerifier) Verify(ctx context.Context, creds Credentials) (*Principal, error) {
	user, err := v.accounts.GetByAccount(ctx, creds.Account)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			v.hasher.Matches(creds.Secret, v.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !v.hasher.Matches(creds.Secret, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.Active() {
		return nil, ErrInvalidCredentials
	}
	return NewPrincipal(user), nil
}
