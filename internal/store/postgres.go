// This file implements the PostgreSQL-backed store.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/fieldops/taskbot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

const pgSubscriberColumns = `id, user_id, username, first_name, last_name, profession, is_active, tasks_completed, total_earnings, joined_at`

func (s *PostgresStore) AddSubscriber(sub models.Subscriber) error {
	_, err := s.db.Exec(
		`INSERT INTO subscribers (id, user_id, username, first_name, last_name, profession, is_active, tasks_completed, total_earnings, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.UserID, sub.Username, sub.FirstName, sub.LastName,
		sub.Profession, sub.IsActive, sub.TasksCompleted, sub.TotalEarnings, sub.JoinedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddSubscriber failed", "error", err, "id", sub.ID)
		return fmt.Errorf("failed to insert subscriber %s: %w", sub.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSubscriber(id string) (*models.Subscriber, error) {
	row := s.db.QueryRow(`SELECT `+pgSubscriberColumns+` FROM subscribers WHERE id = $1`, id)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriber %s: %w", id, err)
	}
	return &sub, nil
}

func (s *PostgresStore) GetSubscriberByUserID(userID int64) (*models.Subscriber, error) {
	row := s.db.QueryRow(`SELECT `+pgSubscriberColumns+` FROM subscribers WHERE user_id = $1`, userID)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriber by user id %d: %w", userID, err)
	}
	return &sub, nil
}

func (s *PostgresStore) GetSubscribers() ([]models.Subscriber, error) {
	rows, err := s.db.Query(`SELECT ` + pgSubscriberColumns + ` FROM subscribers ORDER BY seq`)
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

func (s *PostgresStore) UpdateSubscriber(sub models.Subscriber) error {
	res, err := s.db.Exec(
		`UPDATE subscribers SET username = $1, first_name = $2, last_name = $3, profession = $4, is_active = $5, tasks_completed = $6, total_earnings = $7 WHERE id = $8`,
		sub.Username, sub.FirstName, sub.LastName, sub.Profession,
		sub.IsActive, sub.TasksCompleted, sub.TotalEarnings, sub.ID,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateSubscriber failed", "error", err, "id", sub.ID)
		return fmt.Errorf("failed to update subscriber %s: %w", sub.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSubscriberNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSubscriber(id string) error {
	res, err := s.db.Exec(`DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSubscriberNotFound
	}
	return nil
}

const pgTaskColumns = `id, title, description, type, target_users, expected_cost, status, accepted_by, deadline, created_at`

func (s *PostgresStore) AddTask(t models.Task) error {
	targetUsers, err := encodeTargetUsers(t.TargetUsers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO tasks (id, title, description, type, target_users, expected_cost, status, accepted_by, deadline, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Title, t.Description, t.Type, targetUsers,
		t.ExpectedCost, t.Status, nilIfEmpty(t.AcceptedBy), nilIfZeroTime(t.Deadline), t.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddTask failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetTask(id string) (*models.Task, error) {
	row := s.db.QueryRow(`SELECT `+pgTaskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task %s: %w", id, err)
	}
	return &t, nil
}

func (s *PostgresStore) GetTasks() ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT ` + pgTaskColumns + ` FROM tasks ORDER BY seq`)
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

func (s *PostgresStore) UpdateTask(t models.Task) error {
	targetUsers, err := encodeTargetUsers(t.TargetUsers)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE tasks SET title = $1, description = $2, type = $3, target_users = $4, expected_cost = $5, status = $6, accepted_by = $7, deadline = $8 WHERE id = $9`,
		t.Title, t.Description, t.Type, targetUsers,
		t.ExpectedCost, t.Status, nilIfEmpty(t.AcceptedBy), nilIfZeroTime(t.Deadline), t.ID,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateTask failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}

func (s *PostgresStore) AddNotification(n models.Notification) error {
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, type, title, message, subscriber_id, timestamp) VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.Type, n.Title, n.Message, nilIfEmpty(n.SubscriberID), n.Timestamp,
	)
	if err != nil {
		slog.Error("PostgresStore AddNotification failed", "error", err, "id", n.ID)
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetNotifications() ([]models.Notification, error) {
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
func (s *PostgresStore) Close() error {
	slog.Debug("PostgresStore Close invoked")
	return s.db.Close()
}
