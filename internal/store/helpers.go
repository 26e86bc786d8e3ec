package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldops/taskbot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZeroTime returns nil if t is the zero time, otherwise returns t.
func nilIfZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// encodeTargetUsers marshals the target-user list for storage.
func encodeTargetUsers(users []string) (string, error) {
	if users == nil {
		users = []string{}
	}
	raw, err := json.Marshal(users)
	if err != nil {
		return "", fmt.Errorf("failed to encode target users: %w", err)
	}
	return string(raw), nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanSubscriber scans a Subscriber row.
func scanSubscriber(s scanner) (models.Subscriber, error) {
	var sub models.Subscriber
	err := s.Scan(
		&sub.ID, &sub.UserID, &sub.Username, &sub.FirstName, &sub.LastName,
		&sub.Profession, &sub.IsActive, &sub.TasksCompleted, &sub.TotalEarnings, &sub.JoinedAt,
	)
	if err != nil {
		return sub, err
	}
	return sub, nil
}

// scanTask scans a Task row, decoding the target-user list and nullable columns.
func scanTask(s scanner) (models.Task, error) {
	var t models.Task
	var targetUsers string
	var acceptedBy sql.NullString
	var deadline sql.NullTime
	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Type, &targetUsers,
		&t.ExpectedCost, &t.Status, &acceptedBy, &deadline, &t.CreatedAt,
	)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(targetUsers), &t.TargetUsers); err != nil {
		return t, fmt.Errorf("failed to decode target users: %w", err)
	}
	t.AcceptedBy = acceptedBy.String
	if deadline.Valid {
		t.Deadline = deadline.Time
	}
	return t, nil
}

// scanNotification scans a Notification row.
func scanNotification(s scanner) (models.Notification, error) {
	var n models.Notification
	var subscriberID sql.NullString
	err := s.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &subscriberID, &n.Timestamp)
	if err != nil {
		return n, err
	}
	n.SubscriberID = subscriberID.String
	return n, nil
}
