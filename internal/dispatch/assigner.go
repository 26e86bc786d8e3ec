// Package dispatch implements the task assignment state machine and the
// operator-triggered offer delivery for TaskBot.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldops/taskbot/internal/messaging"
	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/notify"
	"github.com/fieldops/taskbot/internal/store"
)

// Reply texts sent to technicians on accept/reject outcomes.
const (
	noTaskAvailableReply = "No task is currently available."
)

// Assigner drives a task through its accept/reject transitions.
//
// Task selection is first-eligible in stored (insertion) order: an eligible
// task is active, unaccepted, and targets the subscriber explicitly or via
// broadcast. Tasks and subscribers are re-read from the store on every call
// so concurrent operator CRUD between polling ticks is observed.
type Assigner struct {
	store   store.Store
	sender  *messaging.Sender
	emitter *notify.Emitter
}

// NewAssigner creates an Assigner.
func NewAssigner(st store.Store, sender *messaging.Sender, emitter *notify.Emitter) *Assigner {
	return &Assigner{store: st, sender: sender, emitter: emitter}
}

// findEligible returns the first active unaccepted task targeting the subscriber.
func (a *Assigner) findEligible(subscriberID string) (*models.Task, error) {
	tasks, err := a.store.GetTasks()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	for i := range tasks {
		t := &tasks[i]
		if t.Status == models.TaskStatusActive && t.AcceptedBy == "" && t.Targets(subscriberID) {
			return t, nil
		}
	}
	return nil, nil
}

// Accept assigns the first eligible task to the subscriber. Once a task has
// an acceptor it leaves the active state and is no longer offered to anyone
// else. With no eligible task the subscriber gets a "nothing available" reply.
func (a *Assigner) Accept(ctx context.Context, sub *models.Subscriber) error {
	task, err := a.findEligible(sub.ID)
	if err != nil {
		return err
	}
	if task == nil {
		slog.Debug("Assigner.Accept: no eligible task", "subscriber_id", sub.ID)
		if err := a.sender.SendText(ctx, sub.UserID, noTaskAvailableReply); err != nil {
			slog.Warn("Assigner.Accept: failed to send no-task reply", "error", err, "subscriber_id", sub.ID)
		}
		return nil
	}

	task.AcceptedBy = sub.ID
	task.Status = models.TaskStatusInProgress
	if err := a.store.UpdateTask(*task); err != nil {
		return fmt.Errorf("failed to mark task %s accepted: %w", task.ID, err)
	}
	slog.Info("Assigner.Accept: task accepted", "task_id", task.ID, "subscriber_id", sub.ID)

	reply := fmt.Sprintf("✅ Task accepted: %s\n💰 Expected cost: %.2f", task.Title, task.ExpectedCost)
	if err := a.sender.SendText(ctx, sub.UserID, reply); err != nil {
		slog.Warn("Assigner.Accept: failed to send confirmation", "error", err, "subscriber_id", sub.ID)
	}

	a.emitter.Emit(models.NotificationTypeTaskAccepted,
		"✅ Task accepted",
		fmt.Sprintf("%s accepted task %q", sub.DisplayName(), task.Title),
		sub.ID)
	return nil
}

// Reject acknowledges a rejection. The task stays active and remains
// offered to other recipients; no task state changes on reject.
func (a *Assigner) Reject(ctx context.Context, sub *models.Subscriber) error {
	task, err := a.findEligible(sub.ID)
	if err != nil {
		return err
	}
	if task == nil {
		slog.Debug("Assigner.Reject: no eligible task", "subscriber_id", sub.ID)
		if err := a.sender.SendText(ctx, sub.UserID, noTaskAvailableReply); err != nil {
			slog.Warn("Assigner.Reject: failed to send no-task reply", "error", err, "subscriber_id", sub.ID)
		}
		return nil
	}

	slog.Info("Assigner.Reject: task rejected", "task_id", task.ID, "subscriber_id", sub.ID)
	reply := fmt.Sprintf("❌ Task declined: %s", task.Title)
	if err := a.sender.SendText(ctx, sub.UserID, reply); err != nil {
		slog.Warn("Assigner.Reject: failed to send acknowledgment", "error", err, "subscriber_id", sub.ID)
	}

	a.emitter.Emit(models.NotificationTypeTaskRejected,
		"❌ Task rejected",
		fmt.Sprintf("%s rejected task %q", sub.DisplayName(), task.Title),
		sub.ID)
	return nil
}
