package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/store"
	"github.com/fieldops/taskbot/internal/telegram"
)

func addSubscriber(t *testing.T, st store.Store, id string, userID int64, active bool) {
	t.Helper()
	err := st.AddSubscriber(models.Subscriber{
		ID:        id,
		UserID:    userID,
		FirstName: "Tech",
		IsActive:  active,
		JoinedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("AddSubscriber failed: %v", err)
	}
}

func TestSendText(t *testing.T) {
	st := store.NewInMemoryStore()
	client := telegram.NewMockClient()
	s := NewSender(client, st)

	if err := s.SendText(context.Background(), 100, "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	sent := client.SentTo(100)
	if len(sent) != 1 || sent[0].Text != "hello" || sent[0].WithOffer {
		t.Errorf("sent = %+v", sent)
	}
}

func TestSendOfferCarriesKeyboard(t *testing.T) {
	st := store.NewInMemoryStore()
	client := telegram.NewMockClient()
	s := NewSender(client, st)

	if err := s.SendOffer(context.Background(), 100, "new task"); err != nil {
		t.Fatalf("SendOffer failed: %v", err)
	}
	sent := client.SentTo(100)
	if len(sent) != 1 || !sent[0].WithOffer {
		t.Errorf("sent = %+v, want one offer message", sent)
	}
}

func TestBlockedRecipientDeactivated(t *testing.T) {
	st := store.NewInMemoryStore()
	addSubscriber(t, st, "s_a", 100, true)
	client := telegram.NewMockClient()
	client.SendErrors[100] = telegram.ErrRecipientBlocked
	s := NewSender(client, st)

	// A blocked recipient is handled, not surfaced.
	if err := s.SendText(context.Background(), 100, "hello"); err != nil {
		t.Fatalf("SendText to blocked recipient = %v, want nil", err)
	}

	sub, err := st.GetSubscriberByUserID(100)
	if err != nil {
		t.Fatalf("GetSubscriberByUserID failed: %v", err)
	}
	if sub.IsActive {
		t.Error("subscriber should be deactivated after blocking the bot")
	}
}

func TestBlockedUnknownRecipientIgnored(t *testing.T) {
	st := store.NewInMemoryStore()
	client := telegram.NewMockClient()
	client.SendErrors[999] = telegram.ErrRecipientBlocked
	s := NewSender(client, st)

	if err := s.SendText(context.Background(), 999, "hello"); err != nil {
		t.Fatalf("SendText = %v, want nil", err)
	}
}

func TestTransportErrorSurfaced(t *testing.T) {
	st := store.NewInMemoryStore()
	addSubscriber(t, st, "s_a", 100, true)
	client := telegram.NewMockClient()
	wantErr := errors.New("connection reset")
	client.SendErrors[100] = wantErr
	s := NewSender(client, st)

	if err := s.SendText(context.Background(), 100, "hello"); !errors.Is(err, wantErr) {
		t.Errorf("SendText = %v, want %v", err, wantErr)
	}

	sub, err := st.GetSubscriberByUserID(100)
	if err != nil {
		t.Fatalf("GetSubscriberByUserID failed: %v", err)
	}
	if !sub.IsActive {
		t.Error("transport errors must not deactivate the subscriber")
	}
}
