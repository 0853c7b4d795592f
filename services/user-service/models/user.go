package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is a customer account. Username is kept as entered for display; UsernameKey is its
// normalized form and carries the uniqueness constraint. Email is stored lower-cased.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Username    string    `gorm:"not null" json:"username"`
	UsernameKey string    `gorm:"uniqueIndex;not null" json:"-"`
	Email       string    `gorm:"uniqueIndex;not null" json:"email"`
	First       string    `json:"first"`
	Last        string    `json:"last"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateUserRequest is the signup payload.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	First    string `json:"first"`
	Last     string `json:"last"`
}

// UserPatch carries the mutable profile fields. At least one must be set.
type UserPatch struct {
	First *string `json:"first"`
	Last  *string `json:"last"`
}

func (p UserPatch) Empty() bool {
	return p.First == nil && p.Last == nil
}

// ProfileUpdateRequest is the PUT /user body. The user is addressed by email, taken from
// the body or the ?email= query.
type ProfileUpdateRequest struct {
	Email string  `json:"email" binding:"omitempty,email"`
	First *string `json:"first"`
	Last  *string `json:"last"`
}

type EmailUpdateRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type UsernameUpdateRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
}

// NormalizeUsername is the key usernames are matched and cart keys derived by.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser builds a user from a signup request with normalized keys.
func NewUser(req CreateUserRequest) *User {
	username := strings.TrimSpace(req.Username)
	return &User{
		Username:    username,
		UsernameKey: NormalizeUsername(username),
		Email:       NormalizeEmail(req.Email),
		First:       req.First,
		Last:        req.Last,
	}
}

// Aliases lists every key a cart of this user may be stored under.
func (u *User) Aliases() []string {
	return []string{u.UsernameKey, u.Email}
}

// Migrate creates the users and outbox tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &OutboxEvent{})
}
