package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-creator-hub/internal/config"
	"go-creator-hub/internal/realtime"
)

func testConfig(driver string) *config.Config {
	return &config.Config{
		APIURL:               "http://127.0.0.1:1/api",
		WSPath:               "/ws",
		MaxReconnectAttempts: 1,
		ReconnectDelay:       10 * time.Millisecond,
		DurableDriver:        driver,
		DurableSQLitePath:    ":memory:",
		StorageOpTimeout:     time.Second,
		APITimeout:           time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_WithoutDurableTier(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.DurableNone), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	a.Session.SetToken("tok", true)
	token, ok := a.Session.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
	assert.False(t, a.Session.Remembered())

	_, signedIn, err := a.Resume(context.Background())
	require.NoError(t, err)
	assert.False(t, signedIn, "an undecodable token is not a session")
}

func TestNew_WithSQLiteTier(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.DurableSQLite), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	a.Session.SetToken("tok", true)
	assert.True(t, a.Session.Remembered())

	a.Session.ClearSession()
	_, ok := a.Session.Token()
	assert.False(t, ok)
}

func TestMetricsHandler(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.DurableNone), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "creatorhub_realtime_state")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestClose_IsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.DurableNone), quietLogger())
	require.NoError(t, err)

	a.Close()
	a.Close()
	assert.Equal(t, realtime.StateDisconnected, a.Channel.State())
}
