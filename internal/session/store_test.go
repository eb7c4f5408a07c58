package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu     sync.Mutex
	values map[string]string
	broken bool
}

func newMemKV() *memKV {
	return &memKV{values: map[string]string{}}
}

func (m *memKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return "", false, errors.New("storage disabled")
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memKV) Set(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return errors.New("storage disabled")
	}
	m.values[key] = value
	return nil
}

func (m *memKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return errors.New("storage disabled")
	}
	delete(m.values, key)
	return nil
}

type memJar struct {
	memKV
	expires map[string]time.Time
}

func newMemJar() *memJar {
	return &memJar{memKV: memKV{values: map[string]string{}}, expires: map[string]time.Time{}}
}

func (j *memJar) Set(name string, value string, expires time.Time) error {
	if err := j.memKV.Set(name, value); err != nil {
		return err
	}
	j.expires[name] = expires
	return nil
}

type fixture struct {
	store     *Store
	cookies   *memJar
	durable   *memKV
	ephemeral *memKV
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		cookies:   newMemJar(),
		durable:   newMemKV(),
		ephemeral: newMemKV(),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store = New(Tiers{Cookies: f.cookies, Durable: f.durable, Ephemeral: f.ephemeral},
		WithClock(func() time.Time { return f.now }))
	return f
}

func TestStore_TokenRoundTrip(t *testing.T) {
	t.Parallel()

	for _, rememberMe := range []bool{true, false} {
		for _, token := range []string{"abc123", "eyJhbGciOiJIUzI1NiJ9.payload.sig", "x"} {
			f := newFixture()
			f.store.SetToken(token, rememberMe)

			got, ok := f.store.Token()
			require.True(t, ok)
			assert.Equal(t, token, got)
		}
	}
}

func TestStore_SetTokenTiers(t *testing.T) {
	t.Parallel()

	t.Run("remember me writes durable tier with 30 day cookie", func(t *testing.T) {
		f := newFixture()
		f.store.SetToken("abc123", true)

		assert.Equal(t, "abc123", f.cookies.values["auth_token"])
		assert.Equal(t, f.now.Add(30*24*time.Hour), f.cookies.expires["auth_token"])
		assert.Equal(t, "abc123", f.durable.values["token"])
		assert.NotContains(t, f.ephemeral.values, "token")
	})

	t.Run("session scoped writes ephemeral tier", func(t *testing.T) {
		f := newFixture()
		f.store.SetToken("abc123", false)

		assert.True(t, f.cookies.expires["auth_token"].IsZero())
		assert.Equal(t, "abc123", f.ephemeral.values["token"])
		assert.NotContains(t, f.durable.values, "token")
	})
}

func TestStore_TokenFallbackOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.ephemeral.values["token"] = "from-ephemeral"
	got, _ := f.store.Token()
	assert.Equal(t, "from-ephemeral", got)

	f.durable.values["token"] = "from-durable"
	got, _ = f.store.Token()
	assert.Equal(t, "from-durable", got)

	f.cookies.values["auth_token"] = "from-cookie"
	got, _ = f.store.Token()
	assert.Equal(t, "from-cookie", got)
}

func TestStore_ClearSessionIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.SetToken("abc123", true)
	f.store.SetRole("ROLE_COMPANY", "COMPANY", true, false)
	f.ephemeral.values["userRole"] = "ROLE_CONTENT_CREATOR"

	for i := 0; i < 2; i++ {
		f.store.ClearSession()

		_, ok := f.store.Token()
		assert.False(t, ok)
		_, ok = f.store.Role()
		assert.False(t, ok)
		assert.Empty(t, f.cookies.values)
		assert.Empty(t, f.durable.values)
		assert.Empty(t, f.ephemeral.values)
	}
}

func TestStore_SetRoleNormalisation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		role             string
		rawRole          string
		isContentCreator bool
		wantRole         string
		wantRaw          string
	}{
		{"content creator flag overrides role", "ROLE_COMPANY", "COMPANY", true, "ROLE_CONTENT_CREATOR", "CONTENT_CREATOR"},
		{"company role kept and upper-cased", "role_company", "company", false, "ROLE_COMPANY", "COMPANY"},
		{"non company role forced to company", "ROLE_ADMIN", "ADMIN", false, "ROLE_COMPANY", "COMPANY"},
		{"empty role forced to company", "", "", false, "ROLE_COMPANY", "COMPANY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.store.SetRole(tt.role, tt.rawRole, false, tt.isContentCreator)

			assert.Equal(t, tt.wantRole, f.cookies.values["user_role"])
			assert.Equal(t, tt.wantRaw, f.cookies.values["user_role_raw"])
			assert.Equal(t, tt.wantRaw, f.cookies.values["user_type"])
			assert.Equal(t, tt.wantRole, f.ephemeral.values["userRole"])
			assert.Equal(t, tt.wantRaw, f.ephemeral.values["userType"])

			if tt.isContentCreator {
				assert.Equal(t, "true", f.ephemeral.values["userIsContentCreator"])
				assert.Equal(t, "false", f.ephemeral.values["userIsCompany"])
			} else {
				assert.Equal(t, "false", f.ephemeral.values["userIsContentCreator"])
				assert.Equal(t, "true", f.ephemeral.values["userIsCompany"])
			}

			role, ok := f.store.Role()
			require.True(t, ok)
			assert.Equal(t, tt.wantRole, role)
			raw, ok := f.store.RawRole()
			require.True(t, ok)
			assert.Equal(t, tt.wantRaw, raw)
		})
	}
}

func TestStore_RolePrecedence(t *testing.T) {
	t.Parallel()

	t.Run("userType wins over legacy role string", func(t *testing.T) {
		f := newFixture()
		f.cookies.values["user_role"] = "ROLE_COMPANY"
		f.cookies.values["user_type"] = "CONTENT_CREATOR"

		role, ok := f.store.Role()
		require.True(t, ok)
		assert.Equal(t, "ROLE_CONTENT_CREATOR", role)
		assert.True(t, f.store.IsContentCreator())
	})

	t.Run("isContentCreator flag beats isCompany flag", func(t *testing.T) {
		f := newFixture()
		f.cookies.values["user_is_company"] = "true"
		f.cookies.values["user_is_content_creator"] = "true"

		role, _ := f.store.Role()
		assert.Equal(t, "ROLE_CONTENT_CREATOR", role)
	})

	t.Run("isCompany flag beats role string", func(t *testing.T) {
		f := newFixture()
		f.cookies.values["user_role"] = "ROLE_CONTENT_CREATOR"
		f.cookies.values["user_is_company"] = "true"

		role, _ := f.store.Role()
		assert.Equal(t, "ROLE_COMPANY", role)
		raw, _ := f.store.RawRole()
		assert.Equal(t, "COMPANY", raw)
	})

	t.Run("role string returned verbatim", func(t *testing.T) {
		f := newFixture()
		f.cookies.values["user_role"] = "ROLE_MODERATOR"

		role, _ := f.store.Role()
		assert.Equal(t, "ROLE_MODERATOR", role)
		raw, _ := f.store.RawRole()
		assert.Equal(t, "MODERATOR", raw)
	})

	t.Run("cookie tier beats storage tiers", func(t *testing.T) {
		f := newFixture()
		f.cookies.values["user_role"] = "ROLE_COMPANY"
		f.durable.values["userType"] = "CONTENT_CREATOR"

		role, _ := f.store.Role()
		assert.Equal(t, "ROLE_COMPANY", role)
		assert.True(t, f.store.IsCompany())
	})

	t.Run("durable tier beats ephemeral tier", func(t *testing.T) {
		f := newFixture()
		f.durable.values["userIsCompany"] = "true"
		f.ephemeral.values["userType"] = "CONTENT_CREATOR"

		role, _ := f.store.Role()
		assert.Equal(t, "ROLE_COMPANY", role)
	})

	t.Run("nothing stored", func(t *testing.T) {
		f := newFixture()

		_, ok := f.store.Role()
		assert.False(t, ok)
		_, ok = f.store.RawRole()
		assert.False(t, ok)
		assert.False(t, f.store.IsContentCreator())
		assert.True(t, f.store.IsCompany())
	})
}

func TestStore_IsContentCreatorSubstringFallback(t *testing.T) {
	t.Parallel()

	t.Run("creator substring", func(t *testing.T) {
		f := newFixture()
		f.durable.values["userRole"] = "creator"
		assert.True(t, f.store.IsContentCreator())
	})

	t.Run("content substring", func(t *testing.T) {
		f := newFixture()
		f.cookies.values["user_role"] = "ROLE_CONTENT"
		assert.True(t, f.store.IsContentCreator())
	})

	t.Run("company substring wins over creator", func(t *testing.T) {
		f := newFixture()
		f.cookies.values["user_role"] = "COMPANY_CREATOR_ACCOUNT"
		assert.False(t, f.store.IsContentCreator())
	})

	t.Run("company substring", func(t *testing.T) {
		f := newFixture()
		f.ephemeral.values["userRole"] = "ROLE_COMPANY"
		assert.False(t, f.store.IsContentCreator())
		kind, ok := f.store.Kind()
		require.True(t, ok)
		assert.Equal(t, RoleCompany, kind)
	})

	t.Run("unrecognised cookie role falls through to storage", func(t *testing.T) {
		f := newFixture()
		f.cookies.values["user_role"] = "ROLE_ADMIN"
		f.durable.values["userRoleRaw"] = "CONTENT_CREATOR"
		assert.True(t, f.store.IsContentCreator())
	})
}

func TestStore_StorageFailuresAreAbsence(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cookies.broken = true
	f.durable.broken = true

	f.store.SetToken("abc123", true)
	_, ok := f.store.Token()
	assert.False(t, ok)

	f.store.SetToken("abc123", false)
	got, ok := f.store.Token()
	require.True(t, ok)
	assert.Equal(t, "abc123", got)

	assert.NotPanics(t, f.store.ClearSession)
	_, ok = f.store.Token()
	assert.False(t, ok)
}

func TestStore_UnavailableTiersAreSkipped(t *testing.T) {
	t.Parallel()

	store := New(Tiers{})
	store.SetToken("abc123", true)
	store.SetRole("ROLE_COMPANY", "COMPANY", true, false)
	store.ClearSession()

	_, ok := store.Token()
	assert.False(t, ok)
	assert.False(t, store.IsAuthenticated())
}

func TestStore_LoginScenario(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.SetToken("abc123", true)
	f.store.SetRole("COMPANY", "COMPANY", true, false)

	token, ok := f.store.Token()
	require.True(t, ok)
	assert.Equal(t, "abc123", token)
	assert.True(t, f.store.IsCompany())
	assert.False(t, f.store.IsContentCreator())
	assert.Equal(t, Snapshot{Authenticated: true, Role: "ROLE_COMPANY", RawRole: "COMPANY", Kind: RoleCompany}, f.store.Snapshot())

	f.store.ClearSession()

	_, ok = f.store.Token()
	assert.False(t, ok)
	_, ok = f.store.Role()
	assert.False(t, ok)
	assert.False(t, f.store.IsContentCreator())
	assert.False(t, f.store.IsAuthenticated())
}

func TestStore_Remembered(t *testing.T) {
	t.Parallel()

	f := newFixture()
	assert.False(t, f.store.Remembered())

	f.store.SetToken("abc123", false)
	assert.False(t, f.store.Remembered())

	f.store.SetToken("abc123", true)
	assert.True(t, f.store.Remembered())

	f.store.ClearSession()
	assert.False(t, f.store.Remembered())
}
