package collection

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

const (
	slowQueryThreshold  = 200 * time.Millisecond
	mysqlDialTimeout    = 10 * time.Second
	mysqlDefaultPort    = "3306"
	mysqlDuplicateEntry = 1062
)

// entryRecord is the relational row for an Entry.
type entryRecord struct {
	ID             uint      `gorm:"primaryKey"`
	SlotID         string    `gorm:"size:36;uniqueIndex;not null"`
	OwnerID        string    `gorm:"size:128;index:idx_owner_created,priority:1;not null"`
	CommonName     string    `gorm:"size:255;not null"`
	ScientificName string    `gorm:"size:255;not null"`
	Family         string    `gorm:"size:255"`
	SpeciesCode    string    `gorm:"size:16"`
	ImageURL       string    `gorm:"size:2048"`
	CreatedAt      time.Time `gorm:"index:idx_owner_created,priority:2"`
}

func (entryRecord) TableName() string {
	return "collection_entries"
}

func toRecord(e *Entry) entryRecord {
	return entryRecord{
		SlotID:         e.SlotID,
		OwnerID:        e.OwnerID,
		CommonName:     e.CommonName,
		ScientificName: e.ScientificName,
		Family:         e.Family,
		SpeciesCode:    e.SpeciesCode,
		ImageURL:       e.ImageURL,
		CreatedAt:      e.CreatedAt,
	}
}

func (r *entryRecord) entry() Entry {
	return Entry{
		SlotID:         r.SlotID,
		OwnerID:        r.OwnerID,
		CommonName:     r.CommonName,
		ScientificName: r.ScientificName,
		Family:         r.Family,
		SpeciesCode:    r.SpeciesCode,
		ImageURL:       r.ImageURL,
		CreatedAt:      r.CreatedAt,
	}
}

// GormStore keeps entries in a SQL database through gorm.
type GormStore struct {
	db      *gorm.DB
	dialect string
	log     logger.Logger
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(path string, log logger.Logger) (*GormStore, error) {
	if path == "" {
		return nil, errors.Newf("sqlite path is required").
			Component("collection").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, collectionError(err, "create_directory").Category(errors.CategoryFileIO).Context("path", path).Build()
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	return openGorm(sqlite.Open(dsn), "sqlite", path, log)
}

// NewMySQLStore connects to the configured MySQL database.
func NewMySQLStore(settings conf.MySQLSettings, log logger.Logger) (*GormStore, error) {
	if settings.Host == "" || settings.Database == "" {
		return nil, errors.Newf("mysql host and database are required").
			Component("collection").
			Category(errors.CategoryConfiguration).
			Build()
	}
	cfg := MySQLConfig(settings)
	return openGorm(mysql.Open(cfg.FormatDSN()), "mysql", cfg.Addr+"/"+cfg.DBName, log)
}

// MySQLConfig builds the driver configuration for settings; an empty port means 3306.
func MySQLConfig(settings conf.MySQLSettings) *mysqldriver.Config {
	port := settings.Port
	if port == "" {
		port = mysqlDefaultPort
	}
	cfg := mysqldriver.NewConfig()
	cfg.User = settings.Username
	cfg.Passwd = settings.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.Host, port)
	cfg.DBName = settings.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Timeout = mysqlDialTimeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// driverError extracts the driver error code of a failed statement and reports whether it
// was a unique key violation.
func driverError(err error) (code string, duplicate, ok bool) {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return fmt.Sprintf("sqlite:%d", int(sqliteErr.ExtendedCode)), sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique, true
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return fmt.Sprintf("mysql:%d", mysqlErr.Number), mysqlErr.Number == mysqlDuplicateEntry, true
	}
	return "", false, false
}

func openGorm(dialector gorm.Dialector, dialect, location string, log logger.Logger) (*GormStore, error) {
	if log == nil {
		log = logger.Global().Module("collection")
	}
	log = log.Module(dialect)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, collectionError(err, "open").
			Category(errors.CategoryDatabase).
			Context("dialect", dialect).
			Build()
	}

	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		return nil, collectionError(fmt.Errorf("failed to migrate %s collection schema: %w", dialect, err), "migrate").
			Category(errors.CategoryDatabase).
			Build()
	}

	log.Info("collection store opened", logger.String("location", location))
	return &GormStore{db: db, dialect: dialect, log: log}, nil
}

// Save inserts a new row for entry.
func (s *GormStore) Save(ctx context.Context, entry *Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	record := toRecord(entry)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		b := collectionError(err, "save").
			Category(errors.CategoryDatabase).
			Context("dialect", s.dialect)
		if code, duplicate, ok := driverError(err); ok {
			b = b.Context("driver_code", code).Context("duplicate_slot", duplicate)
		}
		return b.Build()
	}
	return nil
}

// List returns an owner's entries, newest first.
func (s *GormStore) List(ctx context.Context, ownerID string, limit int) ([]Entry, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}

	var records []entryRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(listLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, collectionError(err, "list").Category(errors.CategoryDatabase).Build()
	}

	entries := make([]Entry, 0, len(records))
	for i := range records {
		entries = append(entries, records[i].entry())
	}
	return entries, nil
}

// Count returns the number of entries an owner has.
func (s *GormStore) Count(ctx context.Context, ownerID string) (int64, error) {
	if err := validateOwner(ownerID); err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&entryRecord{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, collectionError(err, "count").Category(errors.CategoryDatabase).Build()
	}
	return count, nil
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}
