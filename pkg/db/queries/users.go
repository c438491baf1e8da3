package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

const userColumns = `id, external_id, email, username, full_name, avatar_url, is_active, is_premium, created_at, updated_at`

// ProfileUpdate carries the profile fields to merge on sync. Nil fields are left unchanged.
type ProfileUpdate struct {
	Email     *string
	Username  *string
	FullName  *string
	AvatarURL *string
}

type UserQueries struct {
	db *sqlx.DB
}

func NewUserQueries(dbx *sqlx.DB) *UserQueries {
	return &UserQueries{db: dbx}
}

// CreateUserIfAbsent inserts the user unless its external id already exists.
// It returns nil, nil when another writer created the row first.
func (q *UserQueries) CreateUserIfAbsent(ctx context.Context, user *db.User) (*db.User, error) {
	query := `
		INSERT INTO users (external_id, email, username, full_name, avatar_url)
		VALUES (:external_id, :email, :username, :full_name, :avatar_url)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING ` + userColumns

	rows, err := q.db.NamedQueryContext(ctx, query, user)
	if err != nil {
		log.Errorf("Error creating user: %v", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		log.Debugf("User with external ID '%s' already exists, insert skipped.", user.ExternalID)
		return nil, nil
	}

	created := &db.User{}
	if err := rows.StructScan(created); err != nil {
		log.Errorf("Error scanning user data after creation: %v", err)
		return nil, fmt.Errorf("error scanning user after creation: %w", err)
	}

	log.Infof("User %s created with ID: %s", created.ExternalID, created.ID.String())
	return created, nil
}

// FindUserByExternalID returns nil, nil when no user has that external id.
func (q *UserQueries) FindUserByExternalID(ctx context.Context, externalID string) (*db.User, error) {
	user := &db.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	err := q.db.GetContext(ctx, user, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("User with external ID '%s' not found.", externalID)
			return nil, nil
		}
		log.Errorf("Error finding user by external ID '%s': %v", externalID, err)
		return nil, fmt.Errorf("error finding user by external ID: %w", err)
	}
	return user, nil
}

// UpdateUserProfile merges the non-nil fields of update into the stored profile.
func (q *UserQueries) UpdateUserProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*db.User, error) {
	query := `
		UPDATE users
		SET email = COALESCE($2, email),
		    username = COALESCE($3, username),
		    full_name = COALESCE($4, full_name),
		    avatar_url = COALESCE($5, avatar_url),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	user := &db.User{}
	err := q.db.GetContext(ctx, user, query, id,
		nullable(update.Email), nullable(update.Username), nullable(update.FullName), nullable(update.AvatarURL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warnf("No user found with ID '%s' for update.", id.String())
			return nil, nil
		}
		log.Errorf("Error updating user with ID '%s': %v", id.String(), err)
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	log.Infof("User with ID '%s' updated.", id.String())
	return user, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
