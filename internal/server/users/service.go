// Package users implements the user domain: the user record, its storage
// contract with Postgres and in-memory implementations, and Service, which
// validates, hashes credentials and cascades deletes before touching storage.
package users

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/usersvc/internal/common"
	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/dmitrijs2005/usersvc/internal/server/apperr"
)

const (
	msgInvalidCredentials = "Invalid email or password."
	msgUserNotFound       = "User not found."
	msgEmailTaken         = "Email is already in use."
)

// Hasher hashes and verifies password digests.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(digest, plain string) (bool, error)
	NeedsRehash(digest string) bool
	DecoyDigest() string
}

// DependentsDeleter removes the resources other services keep for a user.
// It reports false when the sibling service did not delete them.
type DependentsDeleter interface {
	DeleteDependents(ctx context.Context, userID string) (bool, error)
}

type Service struct {
	repo       Repository
	hasher     Hasher
	dependents DependentsDeleter
	logger     logging.Logger
}

func NewService(repo Repository, hasher Hasher, dependents DependentsDeleter, logger logging.Logger) *Service {
	return &Service{
		repo:       repo,
		hasher:     hasher,
		dependents: dependents,
		logger:     logger.With("module", "user_service"),
	}
}

// Authenticate returns the user owning email if password matches. Unknown
// emails and wrong passwords yield the same 401 error, and both run one
// digest verification so they cost about the same.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, apperr.Internal("Failed to look up user.", err)
		}
		if _, err := s.hasher.Verify(s.hasher.DecoyDigest(), password); err != nil {
			return nil, apperr.Internal("Failed to verify password.", err)
		}
		return nil, apperr.NotFound(401, msgInvalidCredentials)
	}

	ok, err := s.hasher.Verify(user.Password, password)
	if err != nil {
		return nil, apperr.Internal("Failed to verify password.", err)
	}
	if !ok {
		return nil, apperr.NotFound(401, msgInvalidCredentials)
	}

	if s.hasher.NeedsRehash(user.Password) {
		s.rehash(ctx, user, password)
	}

	return user, nil
}

// rehash upgrades an outdated digest. Failure is logged only: the login
// itself already succeeded.
func (s *Service) rehash(ctx context.Context, user *User, password string) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if _, err := s.repo.Update(ctx, user.ID, Update{Password: &digest}); err != nil {
		s.logger.Warn(ctx, "storing rehashed password failed", "user_id", user.ID, "error", err)
		return
	}
	user.Password = digest
	s.logger.Info(ctx, "password digest upgraded", "user_id", user.ID)
}

func (s *Service) ListAll(ctx context.Context) ([]*User, error) {
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to list users.", err)
	}
	return list, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, apperr.NotFound(404, msgUserNotFound)
		}
		return nil, apperr.Internal("Failed to get user.", err)
	}
	return user, nil
}

// GetSummariesByIDs returns summaries for the ids that exist; unknown ids
// are skipped and repeated ids are looked up once.
func (s *Service) GetSummariesByIDs(ctx context.Context, ids []string) ([]UserSummary, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []UserSummary{}, nil
	}
	list, err := s.repo.GetSummariesByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("Failed to get user summaries.", err)
	}
	return list, nil
}

// Create stores a new user. Inputs are expected to be validated by the caller.
func (s *Service) Create(ctx context.Context, email, password, displayName string) (*User, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal("Failed to hash password.", err)
	}

	name := displayName
	user := &User{Email: normalizeEmail(email), Password: digest, DisplayName: &name}

	user, err = s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, apperr.InvalidInput(msgEmailTaken)
		}
		return nil, apperr.Internal("Failed to create user.", err)
	}

	s.logger.Info(ctx, "user created", "user_id", user.ID)
	return user, nil
}

// Update changes the non-nil fields of upd. A new password is hashed first.
func (s *Service) Update(ctx context.Context, id string, upd Update) (*User, error) {
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		upd.Email = &email
	}
	if upd.Password != nil {
		digest, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, apperr.Internal("Failed to hash password.", err)
		}
		upd.Password = &digest
	}

	user, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return nil, apperr.NotFound(404, msgUserNotFound)
		case errors.Is(err, common.ErrorAlreadyExists):
			return nil, apperr.InvalidInput(msgEmailTaken)
		default:
			return nil, apperr.Internal("Failed to update user.", err)
		}
	}

	return user, nil
}

// DeleteByID deletes the user's dependent resources through the sibling
// service and only then the user. If the cascade fails or reports false the
// user is kept.
func (s *Service) DeleteByID(ctx context.Context, id string) (*User, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}

	deleted, err := s.dependents.DeleteDependents(ctx, id)
	if err != nil {
		s.logger.Error(ctx, "cascade delete failed", "user_id", id, "error", err)
		return nil, apperr.Internal("Failed to delete the user's dependent resources.", err)
	}
	if !deleted {
		s.logger.Warn(ctx, "cascade delete reported nothing deleted", "user_id", id)
		return nil, apperr.Internal("The user's dependent resources were not deleted.", nil)
	}

	user, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, apperr.NotFound(404, msgUserNotFound)
		}
		return nil, apperr.Internal("Failed to delete user.", err)
	}

	s.logger.Info(ctx, "user deleted", "user_id", id)
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
