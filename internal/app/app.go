// Package app assembles the storage, services and HTTP engine of spkd from a
// loaded configuration. Commands in cmd/spkd share it so that serve, sweep
// and the admin tasks see the same wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/spk-service/internal/cache"
	"github.com/tbourn/spk-service/internal/config"
	httpapi "github.com/tbourn/spk-service/internal/http"
	"github.com/tbourn/spk-service/internal/repo"
	"github.com/tbourn/spk-service/internal/services"
	"github.com/tbourn/spk-service/internal/spknum"
)

// App holds every long-lived dependency of the process.
type App struct {
	Config config.Config
	Format spknum.Format

	DB    *gorm.DB
	Redis *redis.Client

	Counters     *repo.CounterStore
	Orders       *repo.OrderStore
	Idempotency  *repo.IdempotencyStore
	Reservations services.ReservationStore

	Generator  *services.GenerationService
	Verifier   *services.VerificationService
	OrderSvc   *services.OrderService
	CounterSvc *services.CounterService
	Sweeper    *services.Sweeper

	// Now is the clock handed to the HTTP layer and the sweeper.
	Now func() time.Time
}

// New opens storage, migrates the schema and builds the services.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := repo.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		_ = repo.Close(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var rdb *redis.Client
	if cfg.Storage.ReservationBackend == config.BackendRedis {
		rdb, err = cache.Connect(ctx, cfg.Storage.RedisURL)
		if err != nil {
			_ = repo.Close(db)
			return nil, err
		}
	}

	a, err := Wire(cfg, db, rdb)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("db_driver", cfg.Storage.Driver).
		Str("reservations", cfg.Storage.ReservationBackend).
		Int("sequence_width", a.Format.Width).
		Dur("reservation_ttl", a.Generator.TTL).
		Str("timezone", a.Generator.Location.String()).
		Msg("storage ready")
	return a, nil
}

// Wire builds the services over already opened connections. rdb may be nil,
// in which case reservations live in the SQL database.
func Wire(cfg config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	a := &App{Config: cfg, DB: db, Redis: rdb, Now: time.Now}

	f, err := spknum.New(cfg.SPK.SequenceWidth)
	if err != nil {
		return a, err
	}
	a.Format = f

	a.Counters = repo.NewCounterStore(db)
	a.Orders = repo.NewOrderStore(db)
	a.Idempotency = repo.NewIdempotencyStore(db)
	if rdb != nil {
		a.Reservations = cache.NewReservationStore(rdb)
	} else {
		a.Reservations = repo.NewReservationStore(db)
	}

	gen := services.NewGenerationService(a.Counters, a.Reservations, a.Orders, f)
	gen.Idempotency = a.Idempotency
	gen.IdempotencyTTL = cfg.IdempotencyTTL
	if cfg.SPK.ReservationTTL > 0 {
		gen.TTL = cfg.SPK.ReservationTTL
	}
	if cfg.SPK.MaxAttempts > 0 {
		gen.MaxAttempts = cfg.SPK.MaxAttempts
	}
	if cfg.SPK.Location != nil {
		gen.Location = cfg.SPK.Location
	}
	a.Generator = gen

	a.Verifier = services.NewVerificationService(a.Reservations, a.Orders, f, gen.TTL)
	a.OrderSvc = services.NewOrderService(a.Orders, a.Verifier, a.Reservations, f)
	a.CounterSvc = &services.CounterService{Counters: a.Counters, Orders: a.Orders, Format: f}

	a.Sweeper = services.NewSweeper(a.Reservations, cfg.SPK.SweepInterval)
	a.Sweeper.Idempotency = a.Idempotency
	a.Sweeper.Now = func() time.Time { return a.Now() }
	return a, nil
}

// Ready pings every backend the request path depends on.
func (a *App) Ready(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Engine returns a Gin engine with every route registered.
func (a *App) Engine() (*gin.Engine, error) {
	gin.SetMode(a.Config.GinMode)
	r := gin.New()
	err := httpapi.RegisterRoutes(r, httpapi.Deps{
		Format:      a.Format,
		Generator:   a.Generator,
		Verifier:    a.Verifier,
		Orders:      a.OrderSvc,
		Counters:    a.CounterSvc,
		Idempotency: httpapi.IdempotencyLookup(a.Idempotency),
		Ready:       a.Ready,
		Now:         func() time.Time { return a.Now() },
	}, a.Config)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the Redis client and the database pool.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, repo.Close(a.DB))
	}
	return errors.Join(errs...)
}
