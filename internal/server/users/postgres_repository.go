package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/usersvc/internal/common"
	"github.com/dmitrijs2005/usersvc/internal/dbx"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*User, error) {
	query :=
		`SELECT id, email, password, display_name FROM users
		 ORDER BY created_at, id
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query :=
		`SELECT id, email, password, display_name FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, r.db, query, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query :=
		`SELECT id, email, password, display_name FROM users
		 WHERE email = $1
		 `
	return r.getOne(ctx, r.db, query, email)
}

func (r *PostgresRepository) GetSummariesByIDs(ctx context.Context, ids []string) ([]UserSummary, error) {
	result := make([]UserSummary, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query :=
		`SELECT id, display_name FROM users
		 WHERE id = ANY($1)
		 `

	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s    UserSummary
			name sql.NullString
		)
		if err := rows.Scan(&s.ID, &name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		s.DisplayName = fromNullString(name)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *User) (*User, error) {
	query :=
		`INSERT INTO users (email, password, display_name)
		 VALUES ($1, $2, $3)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.Password, toNullString(user.DisplayName)).Scan(&user.ID)

	if err != nil {
		return nil, mapWriteError(err)
	}

	return user, nil
}

// Update locks the row, applies the non-nil fields of upd and writes it back
// in one transaction.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd Update) (*User, error) {
	var user *User

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query :=
			`SELECT id, email, password, display_name FROM users
			 WHERE id = $1
			 FOR UPDATE
			 `
		u, err := r.getOne(ctx, tx, query, id)
		if err != nil {
			return err
		}

		upd.Apply(u)

		update :=
			`UPDATE users SET email = $2, password = $3, display_name = $4, updated_at = now()
			 WHERE id = $1
			 `
		if _, err := tx.ExecContext(ctx, update, u.ID, u.Email, u.Password, toNullString(u.DisplayName)); err != nil {
			return mapWriteError(err)
		}

		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (*User, error) {
	query :=
		`DELETE FROM users
		 WHERE id = $1
		 RETURNING id, email, password, display_name
		 `
	return r.getOne(ctx, r.db, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, db dbx.DBTX, query string, args ...any) (*User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var (
		u    User
		name sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Password, &name); err != nil {
		return nil, err
	}
	u.DisplayName = fromNullString(name)
	return &u, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("db error: %w", common.ErrorAlreadyExists)
	}
	return fmt.Errorf("db error: %w", err)
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
