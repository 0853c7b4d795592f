// Package events defines the domain events that drive cart cascade deletion and the buses
// that carry them between services.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the event union.
type Type string

const (
	TypeUserDeleted    Type = "user_deleted"
	TypeProductDeleted Type = "product_deleted"
	TypeUserCreated    Type = "user_created"

	TypeUserEmailUpdated Type = "user_email_updated"
	TypeUsernameUpdated  Type = "username_updated"
)

// Version is the envelope version written by this build.
const Version = 1

// Event is the wire envelope for every domain event.
//
// Key is the partition key (username for user events, product id for product events) and
// Aliases lists every cart key a user's cart may live under. Retired lists the aliases an
// email or username change gave up. Token identifies the logical event across redeliveries
// and republishing; ID identifies one publication.
type Event struct {
	ID         string    `json:"id"`
	Version    int       `json:"version"`
	Type       Type      `json:"event_type"`
	Key        string    `json:"key"`
	Aliases    []string  `json:"aliases,omitempty"`
	Retired    []string  `json:"retired,omitempty"`
	Seq        int64     `json:"seq"`
	Token      string    `json:"token"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ErrMalformed marks an event that can never be applied. Buses dead-letter it without retrying.
var ErrMalformed = errors.New("malformed event")

// DeriveToken returns hex(sha256(type|key|generation)). generation is the creation time of
// the record the event is about, so a re-created username or product yields a new token.
func DeriveToken(t Type, key string, generation int64) string {
	sum := sha256.Sum256([]byte(string(t) + "|" + key + "|" + strconv.FormatInt(generation, 10)))
	return hex.EncodeToString(sum[:])
}

func newEvent(t Type, key string, aliases []string, generation time.Time) Event {
	key = strings.TrimSpace(key)
	return Event{
		ID:         uuid.NewString(),
		Version:    Version,
		Type:       t,
		Key:        key,
		Aliases:    normalizeAliases(key, aliases),
		Token:      DeriveToken(t, key, generation.UnixNano()),
		OccurredAt: time.Now().UTC(),
	}
}

// UserDeleted builds the event published after a user row is deleted. The username is always
// one of the aliases.
func UserDeleted(username string, aliases []string, createdAt time.Time) Event {
	return newEvent(TypeUserDeleted, strings.ToLower(username), append([]string{username}, aliases...), createdAt)
}

// UserCreated builds the event published after signup.
func UserCreated(username string, aliases []string, createdAt time.Time) Event {
	return newEvent(TypeUserCreated, strings.ToLower(username), append([]string{username}, aliases...), createdAt)
}

// ProductDeleted builds the event published after a product is deleted.
func ProductDeleted(productID string, createdAt time.Time) Event {
	return newEvent(TypeProductDeleted, productID, nil, createdAt)
}

// UserEmailUpdated builds the event published after a user moved from oldEmail to their
// current email. updatedAt tells successive changes of one user apart.
func UserEmailUpdated(username string, aliases []string, oldEmail string, updatedAt time.Time) Event {
	return aliasChanged(TypeUserEmailUpdated, username, aliases, oldEmail, updatedAt)
}

// UsernameUpdated builds the event published after a user was renamed from oldUsername.
func UsernameUpdated(username string, aliases []string, oldUsername string, updatedAt time.Time) Event {
	return aliasChanged(TypeUsernameUpdated, username, aliases, oldUsername, updatedAt)
}

func aliasChanged(t Type, username string, aliases []string, old string, updatedAt time.Time) Event {
	e := newEvent(t, strings.ToLower(username), append([]string{username}, aliases...), updatedAt)
	e.Retired = normalizeAliases(e.Key, []string{old})
	if len(e.Retired) > 0 {
		e.Token = DeriveToken(t, e.Key+">"+e.Retired[0], updatedAt.UnixNano())
	}
	return e
}

func normalizeAliases(key string, aliases []string) []string {
	if len(aliases) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(aliases))
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Validate checks the fields every handler relies on.
func (e Event) Validate() error {
	switch e.Type {
	case TypeUserDeleted, TypeUserCreated:
		if len(e.Aliases) == 0 {
			return fmt.Errorf("%w: %s without aliases", ErrMalformed, e.Type)
		}
	case TypeUserEmailUpdated, TypeUsernameUpdated:
		if len(e.Aliases) == 0 || len(e.Retired) == 0 {
			return fmt.Errorf("%w: %s without aliases", ErrMalformed, e.Type)
		}
	case TypeProductDeleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, e.Type)
	}
	if e.Key == "" {
		return fmt.Errorf("%w: empty key", ErrMalformed)
	}
	if e.Token == "" {
		return fmt.Errorf("%w: empty token", ErrMalformed)
	}
	if e.Version > Version {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, e.Version)
	}
	return nil
}

// Encode marshals the event as JSON.
func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

// snsEnvelope is the JSON wrapper SNS adds when delivering to SQS without raw delivery.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// Decode parses an event, unwrapping an SNS notification envelope when present, and validates it.
func Decode(b []byte) (Event, error) {
	var env snsEnvelope
	if err := json.Unmarshal(b, &env); err == nil && env.Type == "Notification" && env.Message != "" {
		b = []byte(env.Message)
	}

	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
