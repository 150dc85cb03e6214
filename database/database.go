package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// Open opens (creating it if needed) the SQLite3 database at path and
// brings its schema up to date.
func Open(path string) (db *sql.DB, err error) {
	db, err = sql.Open("sqlite3", dsn(path))
	if err != nil {
		return
	}

	// db tuning options
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	err = migrateDB(db)
	if err != nil {
		db.Close()
		return
	}

	return
}

// pragmas go in the DSN so that every pooled connection gets them;
// immediate transactions serialize writers up front instead of failing
// on lock upgrade.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

// EnsureAdmin creates the given user with a bcrypt password hash,
// unless a user with that name already exists.
func EnsureAdmin(ctx context.Context, db *sql.DB, username, password string) (created bool, err error) {
	var exists bool
	err = db.QueryRowContext(ctx, "SELECT 1 FROM user WHERE username = ?", username).Scan(&exists)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO user (username, password_hash) VALUES (?, ?)",
		username,
		hash,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}
