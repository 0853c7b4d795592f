package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopswift/commerce-backend/pkg/events"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/user-service/models"
)

const uniqueViolation = "23505"

// GormUserRepository implements UserRepository on Postgres. Signup, delete and alias changes
// write their outbox row inside the same database transaction.
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	u := *user
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return translate(err, u.Username, u.Email)
		}
		return appendOutbox(tx, events.UserCreated(u.Username, u.Aliases(), u.CreatedAt))
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) Get(ctx context.Context, lookup Lookup) (*models.User, error) {
	return find(r.db.WithContext(ctx), lookup)
}

func (r *GormUserRepository) Update(ctx context.Context, lookup Lookup, patch models.UserPatch) (*models.User, error) {
	var out *models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), lookup)
		if err != nil {
			return err
		}
		if patch.First != nil {
			u.First = *patch.First
		}
		if patch.Last != nil {
			u.Last = *patch.Last
		}
		if err := tx.Save(u).Error; err != nil {
			return fmt.Errorf("update user %s: %w", u.Username, err)
		}
		out = u
		return nil
	})
	return out, err
}

func (r *GormUserRepository) UpdateEmail(ctx context.Context, username, email string) (*models.User, error) {
	var out *models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), ByUsername(username))
		if err != nil {
			return err
		}
		old := u.Email
		u.Email = models.NormalizeEmail(email)
		if err := tx.Save(u).Error; err != nil {
			return translate(err, u.Username, u.Email)
		}
		out = u
		if old == u.Email {
			return nil
		}
		return appendOutbox(tx, events.UserEmailUpdated(u.Username, u.Aliases(), old, u.UpdatedAt))
	})
	return out, err
}

func (r *GormUserRepository) UpdateUsername(ctx context.Context, email, username string) (*models.User, error) {
	var out *models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), ByEmail(email))
		if err != nil {
			return err
		}
		old := u.UsernameKey
		u.Username = strings.TrimSpace(username)
		u.UsernameKey = models.NormalizeUsername(username)
		if err := tx.Save(u).Error; err != nil {
			return translate(err, u.Username, u.Email)
		}
		out = u
		if old == u.UsernameKey {
			return nil
		}
		return appendOutbox(tx, events.UsernameUpdated(u.Username, u.Aliases(), old, u.UpdatedAt))
	})
	return out, err
}

func (r *GormUserRepository) Delete(ctx context.Context, lookup Lookup) (*models.User, error) {
	var out *models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), lookup)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.User{}, u.ID).Error; err != nil {
			return fmt.Errorf("delete user %s: %w", u.Username, err)
		}
		out = u
		return appendOutbox(tx, events.UserDeleted(u.Username, u.Aliases(), u.CreatedAt))
	})
	return out, err
}

func find(db *gorm.DB, lookup Lookup) (*models.User, error) {
	var u models.User
	var err error
	if lookup.Email != "" {
		err = db.Where("email = ?", models.NormalizeEmail(lookup.Email)).First(&u).Error
	} else {
		err = db.Where("username_key = ?", models.NormalizeUsername(lookup.Username)).First(&u).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if lookup.Email != "" {
			return nil, apperrors.NotFound("user with email %s not found", lookup.Email)
		}
		return nil, apperrors.NotFound("user %s not found", lookup.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// translate turns a unique violation into a conflict naming the clashing field.
func translate(err error, username, email string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if strings.Contains(pgErr.ConstraintName, "email") {
			return apperrors.Conflict("email %s already taken", email)
		}
		return apperrors.Conflict("username %s already taken", username)
	}
	return fmt.Errorf("write user: %w", err)
}
