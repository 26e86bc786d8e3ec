package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldops/taskbot/internal/models"
)

// Constants for deadline expiry sweeping
const (
	// DefaultExpiryInterval is the default period between expiry sweeps.
	DefaultExpiryInterval = time.Minute
)

// RunExpiry periodically transitions tasks past their deadline to expired.
// It blocks until the context is cancelled. Tasks without a deadline never
// expire; completed and expired tasks are left untouched.
func (d *Dispatcher) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	slog.Info("Dispatcher.RunExpiry: starting expiry sweeper", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.RunExpiry: stopping")
			return
		case <-ticker.C:
			d.sweepExpired(time.Now())
		}
	}
}

// sweepExpired expires every overdue open task.
func (d *Dispatcher) sweepExpired(now time.Time) {
	tasks, err := d.store.GetTasks()
	if err != nil {
		slog.Error("Dispatcher.sweepExpired: failed to load tasks", "error", err)
		return
	}

	for _, task := range tasks {
		if task.Deadline.IsZero() || now.Before(task.Deadline) {
			continue
		}
		if task.Status != models.TaskStatusActive && task.Status != models.TaskStatusInProgress {
			continue
		}

		task.Status = models.TaskStatusExpired
		if err := d.store.UpdateTask(task); err != nil {
			slog.Error("Dispatcher.sweepExpired: failed to expire task", "error", err, "task_id", task.ID)
			continue
		}
		slog.Info("Dispatcher.sweepExpired: task expired", "task_id", task.ID, "deadline", task.Deadline)
		d.emitter.Emit(models.NotificationTypeSystem, "⏰ Task expired",
			fmt.Sprintf("Task %q passed its deadline", task.Title), "")
	}
}
