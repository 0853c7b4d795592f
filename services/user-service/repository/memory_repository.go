package repository

import (
	"context"
	"sync"
	"time"

	"github.com/shopswift/commerce-backend/pkg/events"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/user-service/models"
)

// MemoryUserRepository keeps users in maps. The outbox append happens under the same lock as
// the change (signup, delete and every email or username change), so the relay never sees an event for an uncommitted write.
type MemoryUserRepository struct {
	mu      sync.Mutex
	users   map[string]*models.User // by username key
	byEmail map[string]string       // email -> username key
	outbox  *events.MemoryOutbox
	nextID  uint
	now     func() time.Time
}

func NewMemoryUserRepository(outbox *events.MemoryOutbox) *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		outbox:  outbox,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.users[user.UsernameKey]; taken {
		return nil, apperrors.Conflict("username %s already taken", user.Username)
	}
	if _, taken := r.byEmail[user.Email]; taken {
		return nil, apperrors.Conflict("email %s already taken", user.Email)
	}

	u := *user
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = r.now()
	u.UpdatedAt = u.CreatedAt
	r.users[u.UsernameKey] = &u
	r.byEmail[u.Email] = u.UsernameKey
	r.outbox.Append(events.UserCreated(u.Username, u.Aliases(), u.CreatedAt))

	out := u
	return &out, nil
}

func (r *MemoryUserRepository) Get(_ context.Context, lookup Lookup) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.findLocked(lookup)
	if err != nil {
		return nil, err
	}
	out := *u
	return &out, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, lookup Lookup, patch models.UserPatch) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.findLocked(lookup)
	if err != nil {
		return nil, err
	}
	if patch.First != nil {
		u.First = *patch.First
	}
	if patch.Last != nil {
		u.Last = *patch.Last
	}
	u.UpdatedAt = r.now()
	out := *u
	return &out, nil
}

func (r *MemoryUserRepository) UpdateEmail(_ context.Context, username, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.findLocked(ByUsername(username))
	if err != nil {
		return nil, err
	}
	email = models.NormalizeEmail(email)
	if owner, taken := r.byEmail[email]; taken && owner != u.UsernameKey {
		return nil, apperrors.Conflict("email %s already taken", email)
	}

	old := u.Email
	delete(r.byEmail, u.Email)
	u.Email = email
	u.UpdatedAt = r.now()
	r.byEmail[email] = u.UsernameKey
	if old != email {
		r.outbox.Append(events.UserEmailUpdated(u.Username, u.Aliases(), old, u.UpdatedAt))
	}
	out := *u
	return &out, nil
}

func (r *MemoryUserRepository) UpdateUsername(_ context.Context, email, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.findLocked(ByEmail(email))
	if err != nil {
		return nil, err
	}
	key := models.NormalizeUsername(username)
	if other, taken := r.users[key]; taken && other != u {
		return nil, apperrors.Conflict("username %s already taken", username)
	}

	old := u.UsernameKey
	delete(r.users, u.UsernameKey)
	u.Username = username
	u.UsernameKey = key
	u.UpdatedAt = r.now()
	r.users[key] = u
	r.byEmail[u.Email] = key
	if old != key {
		r.outbox.Append(events.UsernameUpdated(u.Username, u.Aliases(), old, u.UpdatedAt))
	}
	out := *u
	return &out, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, lookup Lookup) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.findLocked(lookup)
	if err != nil {
		return nil, err
	}
	delete(r.users, u.UsernameKey)
	delete(r.byEmail, u.Email)
	r.outbox.Append(events.UserDeleted(u.Username, u.Aliases(), u.CreatedAt))
	return u, nil
}

func (r *MemoryUserRepository) findLocked(lookup Lookup) (*models.User, error) {
	if lookup.Email != "" {
		key, ok := r.byEmail[models.NormalizeEmail(lookup.Email)]
		if !ok {
			return nil, apperrors.NotFound("user with email %s not found", lookup.Email)
		}
		return r.users[key], nil
	}
	u, ok := r.users[models.NormalizeUsername(lookup.Username)]
	if !ok {
		return nil, apperrors.NotFound("user %s not found", lookup.Username)
	}
	return u, nil
}
