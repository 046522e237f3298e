// Package database opens the relational store and runs tracked migrations
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aethra/clientdesk/internal/config"
)

// Dialect names as reported by gorm.Dialector.Name()
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// Open connects to the configured database and applies pool settings
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, sqlDB, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(30 * time.Minute)

	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connected",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name),
	)
	return db, nil
}

// dialectorFor builds the gorm dialector. Postgres and MySQL go through
// database/sql so the lib/pq and go-sql-driver error types surface unchanged.
func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, *sql.DB, error) {
	switch cfg.Driver {
	case DialectPostgres:
		sqlDB, err := sql.Open("postgres", postgresDSN(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open connection: %w", err)
		}
		return postgres.New(postgres.Config{Conn: sqlDB}), sqlDB, nil
	case DialectMySQL:
		sqlDB, err := sql.Open("mysql", mysqlDSN(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open connection: %w", err)
		}
		return gormmysql.New(gormmysql.Config{Conn: sqlDB}), sqlDB, nil
	case DialectSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Name + ".db"
		}
		return sqlite.Open(dsn), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

// postgresDSN constructs a lib/pq connection string
func postgresDSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// mysqlDSN constructs a go-sql-driver connection string
func mysqlDSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	mc := mysqldrv.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// IsUniqueViolation reports whether err comes from a unique constraint
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE is available
func SupportsRowLocks(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case DialectPostgres, DialectMySQL:
		return true
	}
	return false
}
