package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/illegalcall/imaginify/internal/models"
)

// UserColumns is the column list scanned into models.User.
const UserColumns = `id, external_id, email, username, photo, first_name, last_name, plan_id, credit_balance, created_at`

type Users struct {
	db sqlx.ExtContext
}

func NewUsers(db sqlx.ExtContext) *Users {
	return &Users{db: db}
}

// getOne runs a single-row query and maps sql.ErrNoRows to (nil, nil).
func (s *Users) getOne(ctx context.Context, op, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, s.db, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceErr(op, err)
	}
	return &user, nil
}

// FindByExternalIDOrEmail returns the first user matching either key.
func (s *Users) FindByExternalIDOrEmail(ctx context.Context, externalID, email string) (*models.User, error) {
	return s.getOne(ctx, "find user by external id or email",
		`SELECT `+UserColumns+` FROM users WHERE external_id = $1 OR email = $2 LIMIT 1`,
		externalID, email)
}

func (s *Users) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.getOne(ctx, "find user by external id",
		`SELECT `+UserColumns+` FROM users WHERE external_id = $1`, externalID)
}

func (s *Users) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.getOne(ctx, "find user by id",
		`SELECT `+UserColumns+` FROM users WHERE id = $1`, id)
}

// Insert creates a user. It returns (nil, nil) when a unique key already exists.
func (s *Users) Insert(ctx context.Context, identity models.Identity, creditBalance, planID int) (*models.User, error) {
	return s.getOne(ctx, "insert user",
		`INSERT INTO users (external_id, email, username, photo, first_name, last_name, plan_id, credit_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
		RETURNING `+UserColumns,
		identity.ExternalID, identity.Email, identity.Username, identity.Photo,
		nullString(identity.FirstName), nullString(identity.LastName), planID, creditBalance)
}

// UpdateByExternalID applies the non-nil fields of update.
func (s *Users) UpdateByExternalID(ctx context.Context, externalID string, update models.UserUpdate) (*models.User, error) {
	return s.getOne(ctx, "update user",
		`UPDATE users SET
			username = COALESCE($2, username),
			photo = COALESCE($3, photo),
			first_name = COALESCE($4, first_name),
			last_name = COALESCE($5, last_name)
		WHERE external_id = $1
		RETURNING `+UserColumns,
		externalID, update.Username, update.Photo, update.FirstName, update.LastName)
}

func (s *Users) DeleteByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.getOne(ctx, "delete user",
		`DELETE FROM users WHERE external_id = $1 RETURNING `+UserColumns, externalID)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
