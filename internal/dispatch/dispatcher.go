package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldops/taskbot/internal/messaging"
	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/notify"
	"github.com/fieldops/taskbot/internal/store"
)

// Constants for offer delivery pacing
const (
	// DefaultSendDelay is the fixed delay between consecutive offer sends in
	// a broadcast, respecting outbound rate limits. Pacing only: failed
	// sends are not reattempted.
	DefaultSendDelay = 2 * time.Second
)

// Opts holds configuration options for the Dispatcher.
type Opts struct {
	SendDelay time.Duration // inter-message delay during multi-recipient sends
}

// Option defines a configuration option for the Dispatcher.
type Option func(*Opts)

// WithSendDelay overrides the inter-message pacing delay.
func WithSendDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.SendDelay = d
	}
}

// Dispatcher delivers task offers to their recipients and applies
// operator-driven lifecycle transitions (completion).
type Dispatcher struct {
	store     store.Store
	sender    *messaging.Sender
	emitter   *notify.Emitter
	sendDelay time.Duration
}

// NewDispatcher creates a Dispatcher, applying any provided options.
func NewDispatcher(st store.Store, sender *messaging.Sender, emitter *notify.Emitter, opts ...Option) *Dispatcher {
	cfg := Opts{SendDelay: DefaultSendDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{store: st, sender: sender, emitter: emitter, sendDelay: cfg.SendDelay}
}

// offerText renders the message body attached to a task offer.
func offerText(t *models.Task) string {
	return fmt.Sprintf("📌 New task:\n\n🔧 %s\n📝 %s\n\n💰 Expected cost: %.2f", t.Title, t.Description, t.ExpectedCost)
}

// recipients resolves the subscribers a task is offered to: all active
// subscribers for a broadcast task, the explicit target list otherwise
// (inactive targets are skipped).
func (d *Dispatcher) recipients(t *models.Task) ([]models.Subscriber, error) {
	subs, err := d.store.GetSubscribers()
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}
	var out []models.Subscriber
	for _, sub := range subs {
		if sub.IsActive && t.Targets(sub.ID) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// SendTask delivers the offer for an active task to its recipients with a
// fixed inter-message delay. It returns the number of successful sends.
// Individual delivery failures are logged and skipped, not retried.
func (d *Dispatcher) SendTask(ctx context.Context, taskID string) (int, error) {
	task, err := d.store.GetTask(taskID)
	if err != nil {
		return 0, err
	}
	if task.Status != models.TaskStatusActive {
		return 0, models.ErrTaskNotAcceptable
	}

	targets, err := d.recipients(task)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		slog.Warn("Dispatcher.SendTask: no active recipients", "task_id", task.ID)
		d.emitter.Emit(models.NotificationTypeSystem, "⚠️ No recipients",
			fmt.Sprintf("Task %q has no active technicians to offer to", task.Title), "")
		return 0, nil
	}

	text := offerText(task)
	sent := 0
	for i, sub := range targets {
		if i > 0 {
			select {
			case <-time.After(d.sendDelay):
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		}
		if err := d.sender.SendOffer(ctx, sub.UserID, text); err != nil {
			slog.Warn("Dispatcher.SendTask: offer delivery failed", "error", err, "task_id", task.ID, "subscriber_id", sub.ID)
			continue
		}
		sent++
	}

	slog.Info("Dispatcher.SendTask: offers sent", "task_id", task.ID, "sent", sent, "targets", len(targets))
	d.emitter.Emit(models.NotificationTypeSystem, "📤 Task sent",
		fmt.Sprintf("Task %q offered to %d technician(s)", task.Title, sent), "")
	return sent, nil
}

// SendDirect delivers an operator-authored message to one subscriber.
func (d *Dispatcher) SendDirect(ctx context.Context, subscriberID, text string) error {
	sub, err := d.store.GetSubscriber(subscriberID)
	if err != nil {
		return err
	}
	if err := d.sender.SendText(ctx, sub.UserID, text); err != nil {
		return err
	}
	d.emitter.Emit(models.NotificationTypeSystem, "📤 Message sent",
		fmt.Sprintf("Message delivered to %s", sub.DisplayName()), sub.ID)
	return nil
}

// CompleteTask marks an in-progress task completed and credits the
// accepting subscriber's counters with the task's expected cost.
func (d *Dispatcher) CompleteTask(ctx context.Context, taskID string) error {
	task, err := d.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusInProgress || task.AcceptedBy == "" {
		return models.ErrTaskNotInProgress
	}

	task.Status = models.TaskStatusCompleted
	if err := d.store.UpdateTask(*task); err != nil {
		return fmt.Errorf("failed to mark task %s completed: %w", task.ID, err)
	}

	sub, err := d.store.GetSubscriber(task.AcceptedBy)
	if err != nil {
		slog.Error("Dispatcher.CompleteTask: accepting subscriber missing", "error", err, "task_id", task.ID, "subscriber_id", task.AcceptedBy)
		return nil
	}
	sub.TasksCompleted++
	sub.TotalEarnings += task.ExpectedCost
	if err := d.store.UpdateSubscriber(*sub); err != nil {
		slog.Error("Dispatcher.CompleteTask: failed to credit subscriber", "error", err, "subscriber_id", sub.ID)
	}

	slog.Info("Dispatcher.CompleteTask: task completed", "task_id", task.ID, "subscriber_id", sub.ID)
	d.emitter.Emit(models.NotificationTypeTaskCompleted, "🎉 Task completed",
		fmt.Sprintf("%s completed task %q", sub.DisplayName(), task.Title), sub.ID)

	if err := d.sender.SendText(ctx, sub.UserID, fmt.Sprintf("🎉 Task %q marked completed. Earnings credited: %.2f", task.Title, task.ExpectedCost)); err != nil {
		slog.Warn("Dispatcher.CompleteTask: failed to notify subscriber", "error", err, "subscriber_id", sub.ID)
	}
	return nil
}
