package users

import "context"

// Repository persists users. Implementations return common.ErrorNotFound for
// a missing id and common.ErrorAlreadyExists when an email is taken.
type Repository interface {
	ListAll(ctx context.Context) ([]*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetSummariesByIDs(ctx context.Context, ids []string) ([]UserSummary, error)
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, id string, upd Update) (*User, error)
	Delete(ctx context.Context, id string) (*User, error)
}
