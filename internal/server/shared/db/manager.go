// Package db opens the configured storage backend and hands out its
// repositories.
package db

import (
	"context"

	"github.com/dmitrijs2005/usersvc/internal/server/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Users() users.Repository
	Close() error
}
