// Package messaging provides outbound message delivery for TaskBot.
//
// It wraps the Telegram client with delivery-failure classification: a
// recipient that blocked the bot is deactivated in the store rather than
// retried, and all other failures are surfaced to the caller as best-effort
// errors that are never retried automatically.
package messaging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/store"
	"github.com/fieldops/taskbot/internal/telegram"
)

// Sender delivers messages to technicians and classifies transport failures.
type Sender struct {
	client telegram.Sender
	store  store.Store
}

// NewSender creates a Sender over the given transport and store.
func NewSender(client telegram.Sender, st store.Store) *Sender {
	return &Sender{client: client, store: st}
}

// SendText delivers a plain message to the chat identified by userID.
// A blocked recipient is deactivated and reported as handled (nil error).
func (s *Sender) SendText(ctx context.Context, userID int64, text string) error {
	return s.classify(userID, s.client.SendMessage(ctx, userID, text))
}

// SendOffer delivers a task offer with the accept/reject keyboard attached.
func (s *Sender) SendOffer(ctx context.Context, userID int64, text string) error {
	return s.classify(userID, s.client.SendTaskOffer(ctx, userID, text))
}

// classify applies the delivery-failure taxonomy to a send result.
func (s *Sender) classify(userID int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, telegram.ErrRecipientBlocked) {
		s.deactivate(userID)
		return nil
	}
	slog.Error("Sender: message delivery failed", "error", err, "user_id", userID)
	return err
}

// deactivate flips the subscriber's active flag. The record is kept; only
// an external administrative action removes subscribers.
func (s *Sender) deactivate(userID int64) {
	sub, err := s.store.GetSubscriberByUserID(userID)
	if err != nil {
		if !errors.Is(err, models.ErrSubscriberNotFound) {
			slog.Error("Sender.deactivate: subscriber lookup failed", "error", err, "user_id", userID)
		}
		return
	}
	if !sub.IsActive {
		return
	}
	sub.IsActive = false
	if err := s.store.UpdateSubscriber(*sub); err != nil {
		slog.Error("Sender.deactivate: failed to update subscriber", "error", err, "id", sub.ID)
		return
	}
	slog.Warn("Sender.deactivate: recipient blocked the bot, subscriber deactivated", "id", sub.ID, "user_id", userID)
}
