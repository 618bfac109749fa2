package database

import (
	"context"
	"database/sql"
	"fmt"

	"chathub-backend/internal/config"
	"chathub-backend/internal/database/migrations"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func readPragmaValues(db *sql.DB, sugar *zap.SugaredLogger) error {
	var foreignKeysValue bool
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysValue)
	if err != nil {
		return err
	}
	if !foreignKeysValue {
		return fmt.Errorf("sqlite foreign keys couldn't be enabled")
	}

	var journalModeValue string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&journalModeValue)
	if err != nil {
		return err
	}

	var synchronousValue int
	err = db.QueryRow("PRAGMA synchronous").Scan(&synchronousValue)
	if err != nil {
		return err
	}

	sugar.Debugw("sqlite pragmas", "foreign_keys", foreignKeysValue, "journal_mode", journalModeValue, "synchronous", synchronousValue)
	return nil
}

// OpenSQLite opens a sqlite database at path (":memory:" works too).
func OpenSQLite(path string, sugar *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1,
	// it also keeps a ":memory:" database on one connection
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := setPragmaValues(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := readPragmaValues(db, sugar); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func OpenMySQL(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	return db, nil
}

// Setup connects to sqlite or mysql depending on cfg.SelfContained and
// applies pending migrations.
func Setup(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	var dialect goose.Dialect

	if cfg.SelfContained {
		sugar.Info("Connecting to database sqlite...")
		db, err = OpenSQLite(cfg.SqlitePath, sugar)
		dialect = goose.DialectSQLite3
	} else {
		sugar.Info("Connecting to database mysql/mariadb...")
		db, err = OpenMySQL(cfg)
		dialect = goose.DialectMySQL
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := Migrate(ctx, db, dialect, sugar); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, sugar *zap.SugaredLogger) error {
	provider, err := goose.NewProvider(dialect, db, migrations.FS)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	for _, r := range results {
		sugar.Infof("Applied migration %s in %s", r.Source.Path, r.Duration)
	}
	return nil
}
