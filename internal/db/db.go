package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite database and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=1", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS study_sets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			set_type TEXT NOT NULL CHECK(set_type IN ('flashcards','quiz')),
			title TEXT NOT NULL,
			card_count INTEGER NOT NULL DEFAULT 0,
			question_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS flashcard_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			set_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			due DATETIME,
			stability REAL NOT NULL DEFAULT 0,
			difficulty REAL NOT NULL DEFAULT 0,
			elapsed_days INTEGER NOT NULL DEFAULT 0,
			scheduled_days INTEGER NOT NULL DEFAULT 0,
			reps INTEGER NOT NULL DEFAULT 0,
			lapses INTEGER NOT NULL DEFAULT 0,
			state INTEGER NOT NULL DEFAULT 0,
			last_review DATETIME,
			FOREIGN KEY(set_id) REFERENCES study_sets(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS quiz_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			set_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			options TEXT NOT NULL,
			correct_index INTEGER NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(set_id) REFERENCES study_sets(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS review_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL,
			rating INTEGER NOT NULL,
			scheduled_days INTEGER NOT NULL,
			elapsed_days INTEGER NOT NULL,
			state INTEGER NOT NULL,
			reviewed_at DATETIME NOT NULL,
			FOREIGN KEY(item_id) REFERENCES flashcard_items(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sets_user_updated ON study_sets(user_id, updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_flashcard_items_set ON flashcard_items(set_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_flashcard_items_due ON flashcard_items(set_id, due);`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_items_set ON quiz_items(set_id, position);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}

	return nil
}
