package database

import (
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/miladnoo/Heray/config"
	"github.com/miladnoo/Heray/v1/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseConfig holds GORM database connection configuration
type DatabaseConfig struct {
	Dialect         config.StorageKind
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	RunMigration    bool
}

// NewDatabaseConfig derives the GORM configuration from the service config.
// For Postgres the datastore key is used as the password when the URL has none.
func NewDatabaseConfig(cfg *config.Config) (*DatabaseConfig, error) {
	kind, err := cfg.StorageKind()
	if err != nil {
		return nil, err
	}

	dbConfig := &DatabaseConfig{
		Dialect:         kind,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		RunMigration:    cfg.RunMigration,
	}

	switch kind {
	case config.StoragePostgres:
		u, err := url.Parse(cfg.DatastoreURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATASTORE_URL: %w", err)
		}
		if u.User == nil {
			u.User = url.UserPassword("postgres", cfg.DatastoreKey)
		} else if _, ok := u.User.Password(); !ok {
			u.User = url.UserPassword(u.User.Username(), cfg.DatastoreKey)
		}
		dbConfig.DSN = u.String()
	case config.StorageSQLite:
		dbConfig.DSN = strings.TrimPrefix(cfg.DatastoreURL, "sqlite://")
		// A local file has no separate migration step
		dbConfig.RunMigration = true
	default:
		return nil, fmt.Errorf("datastore %q is not served by GORM", kind)
	}
	return dbConfig, nil
}

// ConnectGormDB opens the GORM connection, configures the pool and optionally migrates
func ConnectGormDB(cfg *DatabaseConfig) (*gorm.DB, error) {
	// ParameterizedQueries keeps member contact details out of the SQL log
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Dialect {
	case config.StoragePostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.StorageSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to database with GORM", "dialect", cfg.Dialect)

	if cfg.RunMigration {
		slog.Info("Running GORM auto-migration for members")
		if err := db.AutoMigrate(&models.Member{}); err != nil {
			return nil, fmt.Errorf("failed to run auto-migration: %w", err)
		}
		slog.Info("GORM auto-migration completed successfully")
	} else {
		slog.Info("Database connected (migration skipped)")
	}

	return db, nil
}

// NewMemberRepository selects the storage collaborator named by DATASTORE_URL
func NewMemberRepository(cfg *config.Config) (MemberRepository, error) {
	kind, err := cfg.StorageKind()
	if err != nil {
		return nil, err
	}

	if kind == config.StorageREST {
		slog.Info("Using hosted REST datastore", "url", cfg.DatastoreURL)
		return NewRESTRepository(cfg.DatastoreURL, cfg.DatastoreKey, cfg.DatastoreTimeout), nil
	}

	dbConfig, err := NewDatabaseConfig(cfg)
	if err != nil {
		return nil, err
	}
	db, err := ConnectGormDB(dbConfig)
	if err != nil {
		return nil, err
	}
	return NewGormRepository(db), nil
}
