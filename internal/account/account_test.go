package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-creator-hub/internal/api"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/session"
	"go-creator-hub/internal/storage"
	"go-creator-hub/pkg/apierror"
)

type fakeChannel struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeChannel) Connect() {
	f.mu.Lock()
	f.calls = append(f.calls, "connect")
	f.mu.Unlock()
}

func (f *fakeChannel) Disconnect() error {
	f.mu.Lock()
	f.calls = append(f.calls, "disconnect")
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type backend struct {
	mu      sync.Mutex
	routes  map[string]func(w http.ResponseWriter, r *http.Request)
	lastReq map[string]json.RawMessage
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{Success: status < 300, Message: message, Data: data})
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	var body json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	b.lastReq[key] = body
	h, ok := b.routes[key]
	b.mu.Unlock()

	if !ok {
		respond(w, http.StatusNotFound, "no route", nil)
		return
	}
	h(w, r)
}

type harness struct {
	svc       *Service
	store     *session.Store
	durable   *storage.MemoryTier
	ephemeral *storage.MemoryTier
	channel   *fakeChannel
	backend   *backend
	signOuts  int
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		durable:   storage.NewMemoryTier(),
		ephemeral: storage.NewMemoryTier(),
		channel:   &fakeChannel{},
		backend:   &backend{routes: map[string]func(http.ResponseWriter, *http.Request){}, lastReq: map[string]json.RawMessage{}},
		now:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}

	srv := httptest.NewServer(h.backend)
	t.Cleanup(srv.Close)

	h.store = session.New(session.Tiers{Durable: h.durable, Ephemeral: h.ephemeral})
	client := api.New(srv.URL, h.store, api.Options{Timeout: 5 * time.Second})
	h.svc = New(client, h.store, h.channel, Options{
		OnSignOut: func() { h.signOuts++ },
		Now:       func() time.Time { return h.now },
	})

	return h
}

func (h *harness) route(key string, fn func(w http.ResponseWriter, r *http.Request)) {
	h.backend.mu.Lock()
	h.backend.routes[key] = fn
	h.backend.mu.Unlock()
}

func signToken(t *testing.T, sub string, role string, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.test",
		"role":  role,
		"exp":   exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestLogin_EstablishesSessionAndReconnects(t *testing.T) {
	h := newHarness(t)
	token := signToken(t, "u-1", model.RoleContentCreator, h.now.Add(time.Hour))

	h.route("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, "", model.LoginResult{
			Token:            token,
			UserID:           "u-1",
			Role:             model.RoleContentCreator,
			IsContentCreator: true,
		})
	})

	res, err := h.svc.Login(context.Background(), " creator@example.test ", "pw", true)
	require.NoError(t, err)
	assert.Equal(t, "u-1", res.UserID)

	got, ok := h.store.Token()
	require.True(t, ok)
	assert.Equal(t, token, got)
	assert.True(t, h.store.Remembered())

	role, _ := h.store.Role()
	assert.Equal(t, "ROLE_CONTENT_CREATOR", role)
	assert.True(t, h.store.IsContentCreator())
	assert.Equal(t, []string{"disconnect", "connect"}, h.channel.history())

	var sent model.LoginRequest
	require.NoError(t, json.Unmarshal(h.backend.lastReq["POST /auth/login"], &sent))
	assert.Equal(t, "creator@example.test", sent.Email)
	assert.True(t, sent.RememberMe)

	user, ok := h.svc.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, model.RoleContentCreator, user.Role)
}

func TestLogin_UnknownRoleBecomesCompany(t *testing.T) {
	h := newHarness(t)
	h.route("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, "", model.LoginResult{Token: "t", UserID: "u-2", Role: "ADMIN"})
	})

	_, err := h.svc.Login(context.Background(), "a@b.test", "pw", false)
	require.NoError(t, err)

	role, _ := h.store.Role()
	raw, _ := h.store.RawRole()
	assert.Equal(t, "ROLE_COMPANY", role)
	assert.Equal(t, "COMPANY", raw)
	assert.False(t, h.store.Remembered())
}

func TestLogin_Failures(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Login(context.Background(), "", "pw", false)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	h.route("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusForbidden, "Please verify your email", map[string]string{"code": "EMAIL_NOT_VERIFIED"})
	})

	_, err = h.svc.Login(context.Background(), "a@b.test", "pw", false)
	assert.ErrorIs(t, err, apierror.ErrForbidden)
	assert.False(t, h.store.IsAuthenticated())
	assert.Empty(t, h.channel.history())
}

func TestUnauthorizedClearsSessionButForbiddenDoesNot(t *testing.T) {
	h := newHarness(t)
	h.store.SetToken("tok", true)
	h.store.SetRole("ROLE_COMPANY", "COMPANY", true, false)

	h.route("GET /company/profile", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusForbidden, "", nil)
	})
	err := h.svc.SyncRole(context.Background())
	assert.ErrorIs(t, err, apierror.ErrForbidden)
	assert.True(t, h.store.IsAuthenticated())
	assert.Zero(t, h.signOuts)

	h.route("GET /company/profile", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusUnauthorized, "Token expired", nil)
	})
	err = h.svc.SyncRole(context.Background())
	assert.ErrorIs(t, err, apierror.ErrUnauthorized)
	assert.False(t, h.store.IsAuthenticated())
	_, hasRole := h.store.Role()
	assert.False(t, hasRole)
	assert.Equal(t, 1, h.signOuts)
	assert.Equal(t, []string{"disconnect"}, h.channel.history())
}

func TestSyncRole_RewritesRoleInSameTier(t *testing.T) {
	h := newHarness(t)
	h.store.SetToken("tok", false)
	h.store.SetRole("ROLE_COMPANY", "COMPANY", false, false)

	h.route("GET /company/profile", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, "", model.Profile{UserID: "u-1", Role: "ROLE_CONTENT_CREATOR"})
	})

	require.NoError(t, h.svc.SyncRole(context.Background()))
	assert.True(t, h.store.IsContentCreator())

	v, ok, _ := h.ephemeral.Get("userRole")
	assert.True(t, ok)
	assert.Equal(t, "ROLE_CONTENT_CREATOR", v)
	_, ok, _ = h.durable.Get("userRole")
	assert.False(t, ok)
}

func TestSyncRole_RequiresSession(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.svc.SyncRole(context.Background()), ErrNotSignedIn)
}

func TestVerifyEmail(t *testing.T) {
	t.Run("confirmation only", func(t *testing.T) {
		h := newHarness(t)
		h.route("POST /auth/verify-email", func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusOK, "Email verified", nil)
		})

		signedIn, err := h.svc.VerifyEmail(context.Background(), "v-1", false)
		require.NoError(t, err)
		assert.False(t, signedIn)
		assert.False(t, h.store.IsAuthenticated())
	})

	t.Run("signs in", func(t *testing.T) {
		h := newHarness(t)
		h.route("POST /auth/verify-email", func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusOK, "", model.LoginResult{Token: "t-1", UserID: "u-1", Role: model.RoleCompany})
		})

		signedIn, err := h.svc.VerifyEmail(context.Background(), "v-1", false)
		require.NoError(t, err)
		assert.True(t, signedIn)
		assert.True(t, h.store.IsCompany())
		assert.Equal(t, []string{"disconnect", "connect"}, h.channel.history())
	})
}

func TestRegister_NormalisesRole(t *testing.T) {
	h := newHarness(t)
	h.route("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req model.RegisterRequest
		require.NoError(t, json.Unmarshal(h.backend.lastReq["POST /auth/register"], &req))
		respond(w, http.StatusCreated, "", model.User{ID: "u-9", Email: req.Email, Role: req.Role})
	})

	user, err := h.svc.Register(context.Background(), model.RegisterRequest{Email: "x@y.test", Password: "pw", Role: "agency"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleCompany, user.Role)

	user, err = h.svc.Register(context.Background(), model.RegisterRequest{Email: "x@y.test", Password: "pw", Role: "content_creator"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleContentCreator, user.Role)
}

func TestPasswordFlows(t *testing.T) {
	h := newHarness(t)
	for _, key := range []string{"POST /auth/forgot-password", "POST /auth/reset-password", "POST /auth/resend-verification"} {
		h.route(key, func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusOK, "ok", nil)
		})
	}

	require.NoError(t, h.svc.ForgotPassword(context.Background(), "a@b.test"))
	require.NoError(t, h.svc.ResendVerification(context.Background(), "a@b.test"))
	require.NoError(t, h.svc.ResetPassword(context.Background(), "r-1", "new-pw"))
	assert.ErrorIs(t, h.svc.ResetPassword(context.Background(), "r-1", ""), model.ErrInvalidInput)

	var reset model.ResetPasswordRequest
	require.NoError(t, json.Unmarshal(h.backend.lastReq["POST /auth/reset-password"], &reset))
	assert.Equal(t, "r-1", reset.Token)
	assert.Equal(t, "new-pw", reset.NewPassword)
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.store.SetToken("tok", true)

	require.NoError(t, h.svc.Logout())
	require.NoError(t, h.svc.Logout())

	assert.False(t, h.store.IsAuthenticated())
	assert.Equal(t, []string{"disconnect", "disconnect"}, h.channel.history())
	assert.Zero(t, h.signOuts)
}

func TestCurrentUser(t *testing.T) {
	h := newHarness(t)

	_, ok := h.svc.CurrentUser()
	assert.False(t, ok)

	h.store.SetToken("not-a-jwt", false)
	_, ok = h.svc.CurrentUser()
	assert.False(t, ok)

	h.store.SetToken(signToken(t, "u-1", model.RoleCompany, h.now.Add(-time.Minute)), false)
	_, ok = h.svc.CurrentUser()
	assert.False(t, ok)

	h.store.SetToken(signToken(t, "u-1", model.RoleCompany, h.now.Add(time.Minute)), false)
	user, ok := h.svc.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "u-1@example.test", user.Email)
	assert.Equal(t, h.now.Add(time.Minute).Unix(), user.ExpiresAt.Unix())
}
