// Package store provides storage backends for TaskBot.
//
// It includes an in-memory store plus SQLite and PostgreSQL backends for
// subscribers, tasks, and the operator notification feed.
package store

import (
	"strings"

	"github.com/fieldops/taskbot/internal/models"
)

// Store is the persistence surface shared by the ingest engine, the
// dispatcher, and the admin API. Implementations must return tasks and
// subscribers in insertion order: task assignment picks the first eligible
// task in that order, so iteration order is part of the contract.
type Store interface {
	// AddSubscriber inserts a new subscriber record.
	AddSubscriber(s models.Subscriber) error
	// GetSubscriber returns a subscriber by internal ID, or
	// models.ErrSubscriberNotFound.
	GetSubscriber(id string) (*models.Subscriber, error)
	// GetSubscriberByUserID returns a subscriber by remote chat identity, or
	// models.ErrSubscriberNotFound.
	GetSubscriberByUserID(userID int64) (*models.Subscriber, error)
	// GetSubscribers returns all subscribers in insertion order.
	GetSubscribers() ([]models.Subscriber, error)
	// UpdateSubscriber replaces the stored record matching s.ID.
	UpdateSubscriber(s models.Subscriber) error
	// DeleteSubscriber removes a subscriber record.
	DeleteSubscriber(id string) error

	// AddTask inserts a new task record.
	AddTask(t models.Task) error
	// GetTask returns a task by ID, or models.ErrTaskNotFound.
	GetTask(id string) (*models.Task, error)
	// GetTasks returns all tasks in insertion order.
	GetTasks() ([]models.Task, error)
	// UpdateTask replaces the stored record matching t.ID.
	UpdateTask(t models.Task) error
	// DeleteTask removes a task record.
	DeleteTask(id string) error

	// AddNotification appends an operator-facing notification.
	AddNotification(n models.Notification) error
	// GetNotifications returns all notifications in insertion order.
	GetNotifications() ([]models.Notification, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports which driver a DSN belongs to: "postgres" for
// PostgreSQL connection strings, "sqlite3" for file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
