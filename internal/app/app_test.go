package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/spk-service/internal/cache"
	"github.com/tbourn/spk-service/internal/config"
	"github.com/tbourn/spk-service/internal/repo"
)

var june10 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.GinMode = "test"
	cfg.APIBasePath = "/api/v1"
	cfg.RateRPS = 100
	cfg.RateBurst = 100
	cfg.IdempotencyTTL = time.Hour
	cfg.OTEL.ServiceName = "spk-test"
	cfg.Storage = config.StorageConfig{
		Driver:             config.DriverSQLite,
		DBPath:             filepath.Join(t.TempDir(), "app.db"),
		ReservationBackend: config.BackendSQL,
	}
	cfg.SPK = config.SPKConfig{
		SequenceWidth:  4,
		ReservationTTL: 15 * time.Minute,
		MaxAttempts:    5,
		SweepInterval:  time.Minute,
		Location:       time.UTC,
	}
	return cfg
}

func generate(t *testing.T, a *App) string {
	t.Helper()
	r, err := a.Engine()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/spk/generate", nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		SPK string `json:"spk"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.SPK
}

func TestNew_SQLBackend(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	a.Now = func() time.Time { return june10 }

	assert.IsType(t, &repo.ReservationStore{}, a.Reservations)
	assert.Nil(t, a.Redis)
	assert.NoError(t, a.Ready(context.Background()))

	assert.Equal(t, "06250001", generate(t, a))
	assert.Equal(t, "06250002", generate(t, a))
}

func TestWire_RedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := testConfig(t)
	cfg.Storage.ReservationBackend = config.BackendRedis
	cfg.SPK.SequenceWidth = 3

	db, err := repo.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))

	a, err := Wire(cfg, db, redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	a.Now = func() time.Time { return june10 }

	assert.IsType(t, &cache.ReservationStore{}, a.Reservations)
	assert.NoError(t, a.Ready(context.Background()))
	assert.Equal(t, "0625001", generate(t, a))

	mr.Close()
	assert.Error(t, a.Ready(context.Background()))
}

func TestWire_RejectsBadWidth(t *testing.T) {
	cfg := testConfig(t)
	cfg.SPK.SequenceWidth = 6

	db, err := repo.Open(cfg)
	require.NoError(t, err)

	a, err := Wire(cfg, db, nil)
	assert.Error(t, err)
	assert.NoError(t, a.Close())
}

func TestSweeperUsesAppClock(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	a.Now = func() time.Time { return june10 }

	ctx := context.Background()
	ok, err := a.Reservations.Claim(ctx, "06250001", june10.Add(-time.Hour), 15*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := a.Sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
