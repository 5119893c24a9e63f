// Package database opens the *sql.DB every other component shares.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"

	"github.com/Misty-Star/Speak2SQL/internal/config"
)

var (
	ErrNotConnected      = errors.New("database is not connected")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// DriverName maps a configured driver to its database/sql registration.
func DriverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "mariadb":
		return "mysql", nil
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "duckdb":
		return "duckdb", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

func defaultPort(driverName string) int {
	if driverName == "pgx" {
		return 5432
	}
	return 3306
}

// DSN returns cfg.DSN when set and otherwise builds one from the discrete
// connection fields. For the embedded engines Name is the database file;
// an empty Name opens an in-memory database.
func DSN(cfg config.DatabaseConfig) (string, error) {
	driverName, err := DriverName(cfg.Driver)
	if err != nil {
		return "", err
	}
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}

	port := cfg.Port
	if port <= 0 {
		port = defaultPort(driverName)
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	switch driverName {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = cfg.Name
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case "pgx":
		u := url.URL{Scheme: "postgres", Host: addr, Path: "/" + cfg.Name}
		if cfg.User != "" {
			if cfg.Password != "" {
				u.User = url.UserPassword(cfg.User, cfg.Password)
			} else {
				u.User = url.User(cfg.User)
			}
		}
		return u.String(), nil
	case "sqlite":
		if cfg.Name == "" {
			return ":memory:", nil
		}
		return cfg.Name, nil
	default:
		return cfg.Name, nil
	}
}

func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	driverName, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driverName, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if inMemory(driverName, dsn) {
		// Every connection to an in-memory database sees its own copy.
		db.SetMaxOpenConns(1)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s db: %v", ErrNotConnected, driverName, err)
	}

	return db, nil
}

func inMemory(driverName, dsn string) bool {
	switch driverName {
	case "sqlite":
		return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	case "duckdb":
		return dsn == "" || dsn == ":memory:"
	default:
		return false
	}
}
