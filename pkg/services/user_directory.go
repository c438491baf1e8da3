package services

import (
	"context"
	"fmt"

	"github.com/bavena95/mode-app/pkg/apperrors"
	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/db/queries"
	"github.com/bavena95/mode-app/pkg/identity"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// UserStore is the persistence the directory needs.
type UserStore interface {
	CreateUserIfAbsent(ctx context.Context, user *db.User) (*db.User, error)
	FindUserByExternalID(ctx context.Context, externalID string) (*db.User, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, update queries.ProfileUpdate) (*db.User, error)
}

// UserDirectory maps external identities to local users.
type UserDirectory struct {
	store UserStore
}

func NewUserDirectory(store UserStore) *UserDirectory {
	return &UserDirectory{store: store}
}

// ResolveOrCreate returns the local user for ident, creating it on first
// sight. Concurrent first requests for the same identity converge on one row.
func (d *UserDirectory) ResolveOrCreate(ctx context.Context, ident *identity.ExternalIdentity) (*db.User, error) {
	if ident == nil || ident.ID == "" {
		return nil, apperrors.NewAuthError(fmt.Errorf("identity has no external id"))
	}

	user, err := d.store.FindUserByExternalID(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = d.create(ctx, ident)
		if err != nil {
			return nil, err
		}
	}
	return active(user)
}

// Sync refreshes the stored profile from ident. Fields ident leaves absent are
// kept.
func (d *UserDirectory) Sync(ctx context.Context, ident *identity.ExternalIdentity) (*db.User, error) {
	if ident == nil || ident.ID == "" {
		return nil, apperrors.NewAuthError(fmt.Errorf("identity has no external id"))
	}

	user, err := d.store.FindUserByExternalID(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = d.create(ctx, ident)
		if err != nil {
			return nil, err
		}
		return active(user)
	}
	if !user.IsActive {
		return nil, apperrors.NewNotFoundError("user")
	}

	updated, err := d.store.UpdateUserProfile(ctx, user.ID, queries.ProfileUpdate{
		Email:     ident.Email,
		Username:  ident.Username,
		FullName:  ident.DisplayName,
		AvatarURL: ident.AvatarURL,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Row removed between lookup and update.
		return nil, apperrors.NewNotFoundError("user")
	}
	log.Debugf("UserDirectory.Sync: refreshed profile of user %s", user.ID.String())
	return updated, nil
}

func (d *UserDirectory) create(ctx context.Context, ident *identity.ExternalIdentity) (*db.User, error) {
	user, err := d.store.CreateUserIfAbsent(ctx, &db.User{
		ExternalID: ident.ID,
		Email:      identity.Value(ident.Email),
		Username:   identity.Value(ident.Username),
		FullName:   identity.Value(ident.DisplayName),
		AvatarURL:  identity.Value(ident.AvatarURL),
		IsActive:   true,
	})
	if err != nil {
		return nil, err
	}
	if user != nil {
		log.Infof("UserDirectory: created user %s for external id %s", user.ID.String(), ident.ID)
		return user, nil
	}

	// Another request inserted the row first.
	user, err = d.store.FindUserByExternalID(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s vanished after concurrent insert", ident.ID)
	}
	return user, nil
}

func active(user *db.User) (*db.User, error) {
	if !user.IsActive {
		return nil, apperrors.NewNotFoundError("user")
	}
	return user, nil
}
