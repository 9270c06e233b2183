package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Identity is an authenticated principal.
type Identity struct {
	Subject string
	Role    Role
}

// CredentialStore verifies operator credentials.
type CredentialStore interface {
	Verify(ctx context.Context, username, password string) (Identity, error)
}

// StaticCredentialStore holds a single configured credential pair.
type StaticCredentialStore struct {
	username string
	hash     []byte
	role     Role
}

// NewStaticCredentialStore builds a store from a bcrypt hash.
func NewStaticCredentialStore(username string, passwordHash []byte, role Role) (*StaticCredentialStore, error) {
	if username == "" {
		return nil, errors.New("auth: empty username")
	}
	if len(passwordHash) == 0 {
		return nil, errors.New("auth: empty password hash")
	}
	if _, err := bcrypt.Cost(passwordHash); err != nil {
		return nil, err
	}
	if _, ok := NormalizeRole(string(role)); !ok {
		return nil, errors.New("auth: invalid role")
	}
	return &StaticCredentialStore{username: username, hash: passwordHash, role: role}, nil
}

// NewStaticCredentialStoreFromPassword hashes a plaintext password at startup.
func NewStaticCredentialStoreFromPassword(username, password string, role Role) (*StaticCredentialStore, error) {
	if password == "" {
		return nil, errors.New("auth: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return NewStaticCredentialStore(username, hash, role)
}

// Verify checks username and password.
func (s *StaticCredentialStore) Verify(ctx context.Context, username, password string) (Identity, error) {
	_ = ctx
	if s == nil {
		return Identity{}, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.hash, []byte(password))
	if !userOK || passErr != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Subject: s.username, Role: s.role}, nil
}
