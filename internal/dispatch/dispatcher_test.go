package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/telegram"
)

func TestSendTaskBroadcast(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, "s_a", 100, true)
	f.addSubscriber(t, "s_b", 200, true)
	f.addSubscriber(t, "s_c", 300, false) // inactive, skipped
	f.addTask(t, "t_1", "Install modem", models.TaskTypeGroup, nil, 40)

	sent, err := f.dispatcher.SendTask(context.Background(), "t_1")
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2 (inactive subscriber skipped)", sent)
	}

	for _, chatID := range []int64{100, 200} {
		msgs := f.client.SentTo(chatID)
		if len(msgs) != 1 || !msgs[0].WithOffer {
			t.Errorf("chat %d messages = %+v, want one offer", chatID, msgs)
		}
		if !strings.Contains(msgs[0].Text, "Install modem") {
			t.Errorf("offer text = %q, want task title", msgs[0].Text)
		}
	}
	if msgs := f.client.SentTo(300); len(msgs) != 0 {
		t.Errorf("inactive subscriber got %d messages, want 0", len(msgs))
	}

	if n := f.lastNotification(t); n.Type != models.NotificationTypeSystem {
		t.Errorf("notification type = %q, want system", n.Type)
	}
}

func TestSendTaskIndividualTargets(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, "s_a", 100, true)
	f.addSubscriber(t, "s_b", 200, true)
	f.addTask(t, "t_1", "Targeted job", models.TaskTypeIndividual, []string{"s_b"}, 40)

	sent, err := f.dispatcher.SendTask(context.Background(), "t_1")
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if msgs := f.client.SentTo(100); len(msgs) != 0 {
		t.Error("untargeted subscriber must not receive the offer")
	}
	if msgs := f.client.SentTo(200); len(msgs) != 1 {
		t.Error("targeted subscriber should receive the offer")
	}
}

func TestSendTaskNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.dispatcher.SendTask(context.Background(), "t_missing"); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("SendTask = %v, want ErrTaskNotFound", err)
	}
}

func TestSendTaskNotActive(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, "s_a", 100, true)
	task := models.Task{ID: "t_1", Title: "Done", Type: models.TaskTypeGroup, Status: models.TaskStatusCompleted, CreatedAt: time.Now()}
	if err := f.store.AddTask(task); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	if _, err := f.dispatcher.SendTask(context.Background(), "t_1"); !errors.Is(err, models.ErrTaskNotAcceptable) {
		t.Errorf("SendTask = %v, want ErrTaskNotAcceptable", err)
	}
}

func TestSendTaskNoRecipients(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "t_1", "Nobody home", models.TaskTypeGroup, nil, 40)

	sent, err := f.dispatcher.SendTask(context.Background(), "t_1")
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
	if n := f.lastNotification(t); n.Type != models.NotificationTypeSystem {
		t.Errorf("notification type = %q, want system warning", n.Type)
	}
}

func TestSendTaskSkipsFailedDeliveries(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, "s_a", 100, true)
	f.addSubscriber(t, "s_b", 200, true)
	f.client.SendErrors[100] = errors.New("connection reset")
	f.addTask(t, "t_1", "Install modem", models.TaskTypeGroup, nil, 40)

	sent, err := f.dispatcher.SendTask(context.Background(), "t_1")
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1 (failed delivery skipped, not retried)", sent)
	}
	if msgs := f.client.SentTo(200); len(msgs) != 1 {
		t.Error("remaining recipients should still get the offer")
	}
}

func TestSendTaskBlockedRecipientDeactivated(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, "s_a", 100, true)
	f.client.SendErrors[100] = telegram.ErrRecipientBlocked
	f.addTask(t, "t_1", "Install modem", models.TaskTypeGroup, nil, 40)

	if _, err := f.dispatcher.SendTask(context.Background(), "t_1"); err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}
	sub, err := f.store.GetSubscriber("s_a")
	if err != nil {
		t.Fatalf("GetSubscriber failed: %v", err)
	}
	if sub.IsActive {
		t.Error("blocked recipient should be deactivated during dispatch")
	}
}

func TestSendDirect(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, "s_a", 100, true)

	if err := f.dispatcher.SendDirect(context.Background(), "s_a", "Please call the office"); err != nil {
		t.Fatalf("SendDirect failed: %v", err)
	}
	msgs := f.client.SentTo(100)
	if len(msgs) != 1 || msgs[0].Text != "Please call the office" || msgs[0].WithOffer {
		t.Errorf("sent = %+v", msgs)
	}
}

func TestSendDirectUnknownSubscriber(t *testing.T) {
	f := newFixture(t)
	err := f.dispatcher.SendDirect(context.Background(), "s_missing", "hello")
	if !errors.Is(err, models.ErrSubscriberNotFound) {
		t.Errorf("SendDirect = %v, want ErrSubscriberNotFound", err)
	}
}

func TestCompleteTask(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, "s_a", 100, true)
	task := models.Task{
		ID: "t_1", Title: "Install modem", Type: models.TaskTypeGroup,
		ExpectedCost: 75.5, Status: models.TaskStatusInProgress, AcceptedBy: "s_a", CreatedAt: time.Now(),
	}
	if err := f.store.AddTask(task); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	if err := f.dispatcher.CompleteTask(context.Background(), "t_1"); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	got, _ := f.store.GetTask("t_1")
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("task status = %q, want completed", got.Status)
	}
	sub, _ := f.store.GetSubscriber("s_a")
	if sub.TasksCompleted != 1 || sub.TotalEarnings != 75.5 {
		t.Errorf("subscriber credit = %d tasks, %.2f earnings", sub.TasksCompleted, sub.TotalEarnings)
	}
	if n := f.lastNotification(t); n.Type != models.NotificationTypeTaskCompleted {
		t.Errorf("notification type = %q, want task_completed", n.Type)
	}
	if msgs := f.client.SentTo(100); len(msgs) != 1 {
		t.Error("accepting subscriber should be told about the completion")
	}
}

func TestCompleteTaskNotInProgress(t *testing.T) {
	f := newFixture(t)
	f.addTask(t, "t_1", "Still open", models.TaskTypeGroup, nil, 40)

	if err := f.dispatcher.CompleteTask(context.Background(), "t_1"); !errors.Is(err, models.ErrTaskNotInProgress) {
		t.Errorf("CompleteTask = %v, want ErrTaskNotInProgress", err)
	}
	if err := f.dispatcher.CompleteTask(context.Background(), "t_missing"); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("CompleteTask = %v, want ErrTaskNotFound", err)
	}
}
