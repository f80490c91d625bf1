package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"go-messenger/internal/middleware"
)

func TestServeWsRefusesUnauthenticated(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()
	h := NewHandler(env.registry, env.disp, env.users)

	// No identity in the context: the upgrade is refused and no group is
	// joined.
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	h.ServeWs(w, r)

	req.Equal(http.StatusUnauthorized, w.Code)
	req.Equal(0, env.registry.members.count(""))
}

func TestServeWsRefusesUnknownIdentity(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()
	h := NewHandler(env.registry, env.disp, env.users)

	// Token resolved to a username the directory no longer knows.
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	ctx := context.WithValue(r.Context(), middleware.UsernameKey, "ghost")
	w := httptest.NewRecorder()
	h.ServeWs(w, r.WithContext(ctx))

	req.Equal(http.StatusUnauthorized, w.Code)
	req.Equal(0, env.registry.members.count("ghost"))
}

// The session joins its group before the transport is accepted; when the
// handshake then fails, the membership must be released again.
func TestServeWsLeavesGroupOnFailedHandshake(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()
	env.seedUser(1, "alice", "Alice", "A")
	h := NewHandler(env.registry, env.disp, env.users)

	// A plain GET is not a websocket handshake, so the upgrade fails after
	// the join already happened.
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	ctx := context.WithValue(r.Context(), middleware.UsernameKey, "alice")
	w := httptest.NewRecorder()
	h.ServeWs(w, r.WithContext(ctx))

	req.Equal(http.StatusBadRequest, w.Code)
	req.Equal(0, env.registry.members.count("alice"))
}
