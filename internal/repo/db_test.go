package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/spk-service/internal/config"
	"github.com/tbourn/spk-service/internal/domain"
)

// newStoreDB opens a migrated file-backed SQLite database. A file (rather
// than shared-cache memory) is used so concurrent writers behave like they
// do in production.
func newStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "spk.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() { _ = Close(db) })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "spk.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	db := newStoreDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}

	// Pin several connections at once so the checks hit more than one.
	var conns []*gorm.DB
	for i := 0; i < 3; i++ {
		tx := db.Begin()
		if tx.Error != nil {
			t.Fatalf("begin: %v", tx.Error)
		}
		conns = append(conns, tx)
	}
	defer func() {
		for _, tx := range conns {
			tx.Rollback()
		}
	}()

	for i, tx := range conns {
		var (
			journalMode string
			syncVal     int
			fkOn        int
			busyMS      int
		)
		if err := tx.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
			t.Fatalf("conn %d: PRAGMA journal_mode: %v", i, err)
		}
		if strings.ToLower(journalMode) != "wal" {
			t.Fatalf("conn %d: expected journal_mode=wal, got %q", i, journalMode)
		}
		if err := tx.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil || syncVal != 1 {
			t.Fatalf("conn %d: expected synchronous=1 (NORMAL), got %d (%v)", i, syncVal, err)
		}
		if err := tx.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil || fkOn != 1 {
			t.Fatalf("conn %d: expected foreign_keys=1, got %d (%v)", i, fkOn, err)
		}
		if err := tx.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil || busyMS != 5000 {
			t.Fatalf("conn %d: expected busy_timeout=5000, got %d (%v)", i, busyMS, err)
		}
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}
}

func TestAutoMigrate_CreatesAllTables(t *testing.T) {
	db := newStoreDB(t)
	m := db.Migrator()
	for _, tbl := range []any{&domain.SequenceCounter{}, &domain.Reservation{}, &domain.Order{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
}

func TestOpen_SelectsDriver(t *testing.T) {
	var cfg config.Config
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "open.db")
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	_ = Close(db)

	cfg.Storage.Driver = "oracle"
	if _, err := Open(cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}

	cfg.Storage.Driver = config.DriverPostgres
	cfg.Storage.DatabaseURL = ""
	if _, err := Open(cfg); err == nil {
		t.Fatalf("expected error for empty postgres dsn")
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
