package collection

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(nil, logger.LogLevelError, nil)
}

func newTestSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "collection.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newEntry(owner, common, scientific string, created time.Time) *Entry {
	return &Entry{
		SlotID:         uuid.NewString(),
		OwnerID:        owner,
		CommonName:     common,
		ScientificName: scientific,
		Family:         "Corvidae",
		SpeciesCode:    "blujay",
		ImageURL:       "https://images.example.com/" + owner + ".jpg",
		CreatedAt:      created,
	}
}

func TestGormStore_SaveAndList(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := t.Context()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	first := newEntry("owner-1", "Blue Jay", "Cyanocitta cristata", base)
	second := newEntry("owner-1", "American Robin", "Turdus migratorius", base.Add(time.Minute))
	other := newEntry("owner-2", "Northern Cardinal", "Cardinalis cardinalis", base)

	for _, e := range []*Entry{first, second, other} {
		require.NoError(t, store.Save(ctx, e))
	}

	entries, err := store.List(ctx, "owner-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.SlotID, entries[0].SlotID, "newest first")
	assert.Equal(t, first.SlotID, entries[1].SlotID)
	assert.Equal(t, "Blue Jay", entries[1].CommonName)
	assert.Equal(t, "Cyanocitta cristata", entries[1].ScientificName)
	assert.Equal(t, first.ImageURL, entries[1].ImageURL)
	assert.True(t, first.CreatedAt.Equal(entries[1].CreatedAt))

	limited, err := store.List(ctx, "owner-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	count, err := store.Count(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = store.Count(ctx, "owner-3")
	require.NoError(t, err)
	assert.Zero(t, count)

	empty, err := store.List(ctx, "owner-3", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGormStore_SaveWithoutImageURL(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	entry := newEntry("owner-1", "Blue Jay", "Cyanocitta cristata", time.Time{})
	entry.ImageURL = ""

	require.NoError(t, store.Save(t.Context(), entry))
	assert.False(t, entry.CreatedAt.IsZero(), "creation time is stamped")

	entries, err := store.List(t.Context(), "owner-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].ImageURL)
}

func TestGormStore_Validation(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := t.Context()

	err := store.Save(ctx, newEntry("  ", "Blue Jay", "Cyanocitta cristata", time.Now()))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	noSlot := newEntry("owner-1", "Blue Jay", "Cyanocitta cristata", time.Now())
	noSlot.SlotID = ""
	assert.Error(t, store.Save(ctx, noSlot))
	assert.Error(t, store.Save(ctx, nil))

	_, err = store.List(ctx, "", 10)
	assert.Error(t, err)
	_, err = store.Count(ctx, "")
	assert.Error(t, err)
}

func TestGormStore_DuplicateSlotRejected(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	entry := newEntry("owner-1", "Blue Jay", "Cyanocitta cristata", time.Now())
	require.NoError(t, store.Save(t.Context(), entry))

	dup := *entry
	err := store.Save(t.Context(), &dup)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "sqlite:2067", ee.Context["driver_code"])
	assert.Equal(t, true, ee.Context["duplicate_slot"])
}

func TestDriverError(t *testing.T) {
	t.Parallel()

	code, duplicate, ok := driverError(fmt.Errorf("insert: %w", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	require.True(t, ok)
	assert.Equal(t, "mysql:1062", code)
	assert.True(t, duplicate)

	code, duplicate, ok = driverError(&mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"})
	require.True(t, ok)
	assert.Equal(t, "mysql:1213", code)
	assert.False(t, duplicate)

	_, _, ok = driverError(errors.NewStd("connection refused"))
	assert.False(t, ok)
}

func TestMySQLConfig(t *testing.T) {
	t.Parallel()

	settings := conf.MySQLSettings{
		Username: "birder",
		Password: "p@ss:w/rd?",
		Database: "birdlens",
		Host:     "db.internal",
	}
	dsn := MySQLConfig(settings).FormatDSN()

	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "birder", parsed.User)
	assert.Equal(t, "p@ss:w/rd?", parsed.Passwd, "credentials survive the DSN round trip")
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.internal:3306", parsed.Addr)
	assert.Equal(t, "birdlens", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)
	assert.Equal(t, 10*time.Second, parsed.Timeout)
	assert.Contains(t, dsn, "charset=utf8mb4")

	settings.Host = "::1"
	settings.Port = "3307"
	assert.Equal(t, "[::1]:3307", MySQLConfig(settings).Addr)
}

func TestGormStore_ConcurrentSaves(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	const writers = 10

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Go(func() {
			errs <- store.Save(context.Background(), newEntry("owner-1", fmt.Sprintf("Bird %d", i), "Aves sp.", time.Now()))
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := store.Count(t.Context(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers), count)
}

func TestGormStore_CancelledContext(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := store.Save(ctx, newEntry("owner-1", "Blue Jay", "Cyanocitta cristata", time.Now()))
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	store, err := Open(t.Context(), &conf.CollectionSettings{
		Type:   "sqlite",
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "open.db")},
	}, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(t.Context(), &conf.CollectionSettings{Type: "cassandra"}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = Open(t.Context(), &conf.CollectionSettings{Type: "mysql"}, testLogger())
	assert.Error(t, err, "mysql without host is rejected before dialing")

	_, err = Open(t.Context(), &conf.CollectionSettings{Type: "mongodb"}, testLogger())
	assert.Error(t, err, "mongodb without uri is rejected before dialing")
}
