package db

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB holds the database connection pool.
var DB *sqlx.DB

// InitDB opens the connection pool, verifies it and applies pending migrations.
func InitDB(dbURL string) error {
	var err error
	DB, err = sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return err
	}

	if err = DB.Ping(); err != nil {
		log.Errorf("Failed to ping database: %v", err)
		DB.Close()
		return err
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxIdleTime(5 * time.Minute)

	if err = runMigrations(DB); err != nil {
		DB.Close()
		return err
	}

	log.Info("Database connection pool initialized successfully.")
	return nil
}

func runMigrations(dbx *sqlx.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("db.runMigrations: %w", err)
	}
	if err := goose.Up(dbx.DB, "migrations"); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			log.Info("No migrations to apply.")
			return nil
		}
		return fmt.Errorf("db.runMigrations: %w", err)
	}
	log.Info("Database migrations applied successfully.")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		if err := DB.Close(); err != nil {
			log.Errorf("Error closing database connection: %v", err)
		} else {
			log.Info("Database connection pool closed.")
		}
	}
}
