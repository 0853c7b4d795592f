package controllers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/cart-service/cascade"
	"github.com/shopswift/commerce-backend/services/cart-service/controllers"
	"github.com/shopswift/commerce-backend/services/cart-service/database"
	"github.com/shopswift/commerce-backend/services/cart-service/routes"
)

type fakeDeadLetters struct {
	dead     []events.DeadLetter
	replayed int
	err      error
}

func (f *fakeDeadLetters) DeadLetters() []events.DeadLetter { return f.dead }

func (f *fakeDeadLetters) Replay(context.Context) (int, error) {
	return f.replayed, f.err
}

func setupAdmin(t *testing.T, dl *fakeDeadLetters) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := database.NewMemoryStore(database.NewMemoryTombstones(time.Hour))
	admin := &controllers.AdminController{
		Worker: cascade.NewWorker(store, nil, cascade.Config{}, zap.NewNop(), nil),
	}
	if dl != nil {
		admin.DeadLetters = dl
		admin.Replayer = dl
	}
	r := gin.New()
	routes.RegisterAdminRoutes(r, admin)
	return r
}

func TestAdminWithoutInProcessBusIsNotImplemented(t *testing.T) {
	r := setupAdmin(t, nil)

	assert.Equal(t, http.StatusNotImplemented, do(r, http.MethodGet, "/admin/cascade/dead-letters", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, do(r, http.MethodPost, "/admin/cascade/dead-letters/replay", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin/cascade/stats", nil).Code)
}

func TestAdminListsDeadLetters(t *testing.T) {
	dl := &fakeDeadLetters{dead: []events.DeadLetter{{
		Event:    events.Event{Type: events.TypeUserDeleted, Key: "alice"},
		Err:      "boom",
		Attempts: 3,
	}}}
	r := setupAdmin(t, dl)

	w := do(r, http.MethodGet, "/admin/cascade/dead-letters", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []events.DeadLetter
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Event.Key)
	assert.Equal(t, 3, got[0].Attempts)
}

func TestAdminReplayReportsCount(t *testing.T) {
	r := setupAdmin(t, &fakeDeadLetters{replayed: 2})

	w := do(r, http.MethodPost, "/admin/cascade/dead-letters/replay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"replayed":2}`, w.Body.String())
}

func TestAdminReplayFailureIsUnavailable(t *testing.T) {
	r := setupAdmin(t, &fakeDeadLetters{replayed: 1, err: errors.New("bus closed")})

	w := do(r, http.MethodPost, "/admin/cascade/dead-letters/replay", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "bus closed")
}
