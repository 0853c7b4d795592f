package repository

import (
	"context"

	"github.com/shopswift/commerce-backend/services/user-service/models"
)

// Lookup addresses a user by username or by email. Exactly one field is set.
type Lookup struct {
	Username string
	Email    string
}

func ByUsername(username string) Lookup { return Lookup{Username: username} }
func ByEmail(email string) Lookup       { return Lookup{Email: email} }

// UserRepository is the user store. Every write that other services must learn about
// (signup, delete) appends its event to the outbox atomically with the change.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Get(ctx context.Context, lookup Lookup) (*models.User, error)
	Update(ctx context.Context, lookup Lookup, patch models.UserPatch) (*models.User, error)
	UpdateEmail(ctx context.Context, username, email string) (*models.User, error)
	UpdateUsername(ctx context.Context, email, username string) (*models.User, error)
	Delete(ctx context.Context, lookup Lookup) (*models.User, error)
}
