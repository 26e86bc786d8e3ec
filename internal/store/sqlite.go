// This file implements the SQLite-backed store.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/fieldops/taskbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddSubscriber(sub models.Subscriber) error {
	_, err := s.db.Exec(
		`INSERT INTO subscribers (id, user_id, username, first_name, last_name, profession, is_active, tasks_completed, total_earnings, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.Username, sub.FirstName, sub.LastName,
		sub.Profession, sub.IsActive, sub.TasksCompleted, sub.TotalEarnings, sub.JoinedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddSubscriber failed", "error", err, "id", sub.ID)
		return fmt.Errorf("failed to insert subscriber %s: %w", sub.ID, err)
	}
	slog.Debug("SQLiteStore AddSubscriber succeeded", "id", sub.ID, "user_id", sub.UserID)
	return nil
}

const sqliteSubscriberColumns = `id, user_id, username, first_name, last_name, profession, is_active, tasks_completed, total_earnings, joined_at`

func (s *SQLiteStore) GetSubscriber(id string) (*models.Subscriber, error) {
	row := s.db.QueryRow(`SELECT `+sqliteSubscriberColumns+` FROM subscribers WHERE id = ?`, id)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriber %s: %w", id, err)
	}
	return &sub, nil
}

func (s *SQLiteStore) GetSubscriberByUserID(userID int64) (*models.Subscriber, error) {
	row := s.db.QueryRow(`SELECT `+sqliteSubscriberColumns+` FROM subscribers WHERE user_id = ?`, userID)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriber by user id %d: %w", userID, err)
	}
	return &sub, nil
}

func (s *SQLiteStore) GetSubscribers() ([]models.Subscriber, error) {
	rows, err := s.db.Query(`SELECT ` + sqliteSubscriberColumns + ` FROM subscribers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriber rows: %w", err)
	}
	return subs, nil
}

func (s *SQLiteStore) UpdateSubscriber(sub models.Subscriber) error {
	res, err := s.db.Exec(
		`UPDATE subscribers SET username = ?, first_name = ?, last_name = ?, profession = ?, is_active = ?, tasks_completed = ?, total_earnings = ? WHERE id = ?`,
		sub.Username, sub.FirstName, sub.LastName, sub.Profession,
		sub.IsActive, sub.TasksCompleted, sub.TotalEarnings, sub.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateSubscriber failed", "error", err, "id", sub.ID)
		return fmt.Errorf("failed to update subscriber %s: %w", sub.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSubscriberNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSubscriber(id string) error {
	res, err := s.db.Exec(`DELETE FROM subscribers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSubscriberNotFound
	}
	return nil
}

const sqliteTaskColumns = `id, title, description, type, target_users, expected_cost, status, accepted_by, deadline, created_at`

func (s *SQLiteStore) AddTask(t models.Task) error {
	targetUsers, err := encodeTargetUsers(t.TargetUsers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO tasks (id, title, description, type, target_users, expected_cost, status, accepted_by, deadline, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Type, targetUsers,
		t.ExpectedCost, t.Status, nilIfEmpty(t.AcceptedBy), nilIfZeroTime(t.Deadline), t.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddTask failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	slog.Debug("SQLiteStore AddTask succeeded", "id", t.ID, "title", t.Title)
	return nil
}

func (s *SQLiteStore) GetTask(id string) (*models.Task, error) {
	row := s.db.QueryRow(`SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task %s: %w", id, err)
	}
	return &t, nil
}

func (s *SQLiteStore) GetTasks() ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT ` + sqliteTaskColumns + ` FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

func (s *SQLiteStore) UpdateTask(t models.Task) error {
	targetUsers, err := encodeTargetUsers(t.TargetUsers)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, type = ?, target_users = ?, expected_cost = ?, status = ?, accepted_by = ?, deadline = ? WHERE id = ?`,
		t.Title, t.Description, t.Type, targetUsers,
		t.ExpectedCost, t.Status, nilIfEmpty(t.AcceptedBy), nilIfZeroTime(t.Deadline), t.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateTask failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}

func (s *SQLiteStore) AddNotification(n models.Notification) error {
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, type, title, message, subscriber_id, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.Title, n.Message, nilIfEmpty(n.SubscriberID), n.Timestamp,
	)
	if err != nil {
		slog.Error("SQLiteStore AddNotification failed", "error", err, "id", n.ID)
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetNotifications() ([]models.Notification, error) {
	rows, err := s.db.Query(`SELECT id, type, title, message, subscriber_id, timestamp FROM notifications ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("SQLiteStore Close invoked")
	return s.db.Close()
}
