package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldops/taskbot/internal/dispatch"
	"github.com/fieldops/taskbot/internal/messaging"
	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/notify"
	"github.com/fieldops/taskbot/internal/store"
	"github.com/fieldops/taskbot/internal/telegram"
	"github.com/fieldops/taskbot/internal/util"
)

// Reply texts for the registration paths.
const (
	welcomeReply      = "👋 Welcome! You are registered as a technician. Task offers will arrive here."
	welcomeBackReply  = "👋 Welcome back! You are already registered."
	registerFirstHint = "⚠️ Please register first by sending /start"
)

// Router classifies one inbound update and dispatches it: registration
// command, free text from a known subscriber, or an inline-button press.
//
// A returned error means the update was not processed and must be offered
// again (the poller does not advance its cursor past it). Malformed or
// unknown payloads are consumed silently and never produce an error.
type Router struct {
	store    store.Store
	guard    *Guard
	client   telegram.Sender
	sender   *messaging.Sender
	assigner *dispatch.Assigner
	emitter  *notify.Emitter
}

// NewRouter creates a Router.
func NewRouter(st store.Store, guard *Guard, client telegram.Sender, sender *messaging.Sender, assigner *dispatch.Assigner, emitter *notify.Emitter) *Router {
	return &Router{store: st, guard: guard, client: client, sender: sender, assigner: assigner, emitter: emitter}
}

// identity extracts the sending identity of an update, or false if the
// update carries none (bot senders included).
func identity(u models.Update) (int64, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil && !u.Message.From.IsBot:
		return u.Message.From.ID, true
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil && !u.CallbackQuery.From.IsBot:
		return u.CallbackQuery.From.ID, true
	default:
		return 0, false
	}
}

// Route processes one update to completion, including any synchronous replies.
func (r *Router) Route(ctx context.Context, u models.Update) error {
	userID, ok := identity(u)
	if !ok {
		slog.Debug("Router.Route: update without usable identity discarded", "update_id", u.UpdateID)
		return nil
	}

	if r.guard.IsDuplicate(userID, u.UpdateID) {
		return nil
	}

	var err error
	switch {
	case u.Message != nil:
		err = r.routeMessage(ctx, u.Message, userID)
	case u.CallbackQuery != nil:
		err = r.routeCallback(ctx, u.CallbackQuery, userID)
	default:
		slog.Debug("Router.Route: unsupported update kind discarded", "update_id", u.UpdateID)
	}
	if err != nil {
		// Left unseen: the poller holds its cursor and offers the update again.
		return err
	}

	r.guard.MarkSeen(userID, u.UpdateID)
	return nil
}

// routeMessage handles a plain chat message: registration command, known
// subscriber free text, or an unregistered sender.
func (r *Router) routeMessage(ctx context.Context, msg *models.Message, userID int64) error {
	text := strings.TrimSpace(msg.Text)

	if text == models.RegistrationCommand {
		return r.register(ctx, msg, userID)
	}

	sub, err := r.store.GetSubscriberByUserID(userID)
	if err == nil {
		slog.Debug("Router.routeMessage: technician message received", "subscriber_id", sub.ID, "body_length", len(text))
		r.emitter.Emit(models.NotificationTypeTechnicianMessage,
			fmt.Sprintf("💬 Message from %s", sub.DisplayName()), text, sub.ID)
		return nil
	}
	if !errors.Is(err, models.ErrSubscriberNotFound) {
		return fmt.Errorf("failed to look up subscriber %d: %w", userID, err)
	}

	// Unregistered sender: one-line instruction, nothing recorded.
	slog.Debug("Router.routeMessage: message from unregistered identity", "user_id", userID)
	if err := r.sender.SendText(ctx, chatID(msg, userID), registerFirstHint); err != nil {
		slog.Warn("Router.routeMessage: failed to send registration hint", "error", err, "user_id", userID)
	}
	return nil
}

// register handles the /start command for both new and returning identities.
func (r *Router) register(ctx context.Context, msg *models.Message, userID int64) error {
	if r.guard.IsRegistered(userID) {
		slog.Debug("Router.register: returning identity", "user_id", userID)
		if err := r.sender.SendText(ctx, chatID(msg, userID), welcomeBackReply); err != nil {
			slog.Warn("Router.register: failed to send welcome-back reply", "error", err, "user_id", userID)
		}
		return nil
	}

	// Mark registered before any network reply so a near-simultaneous second
	// registration event cannot create a second subscriber.
	r.guard.MarkRegistered(userID)

	sub := models.Subscriber{
		ID:        util.GenerateSubscriberID(),
		UserID:    userID,
		IsActive:  true,
		JoinedAt:  time.Now(),
		FirstName: fmt.Sprintf("User %d", userID),
	}
	if msg.From != nil {
		sub.Username = msg.From.Username
		if msg.From.FirstName != "" {
			sub.FirstName = msg.From.FirstName
		}
		sub.LastName = msg.From.LastName
	}

	if err := r.store.AddSubscriber(sub); err != nil {
		// Roll the mark back so a retry of this update can register again.
		r.guard.Forget(userID)
		return fmt.Errorf("failed to create subscriber for %d: %w", userID, err)
	}
	slog.Info("Router.register: new subscriber registered", "subscriber_id", sub.ID, "user_id", userID, "username", sub.Username)

	if err := r.sender.SendText(ctx, chatID(msg, userID), welcomeReply); err != nil {
		slog.Warn("Router.register: failed to send welcome reply", "error", err, "user_id", userID)
	}

	r.emitter.Emit(models.NotificationTypeNewSubscriber, "🎉 New technician",
		fmt.Sprintf("%s (@%s) joined", sub.DisplayName(), sub.Username), sub.ID)
	return nil
}

// routeCallback handles an inline-button press.
func (r *Router) routeCallback(ctx context.Context, cb *models.CallbackQuery, userID int64) error {
	// Acknowledge immediately, independent of the business outcome, so the
	// sender's client clears its pending state.
	if err := r.client.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		slog.Warn("Router.routeCallback: callback ack failed", "error", err, "callback_id", cb.ID)
	}

	sub, err := r.store.GetSubscriberByUserID(userID)
	if errors.Is(err, models.ErrSubscriberNotFound) {
		slog.Debug("Router.routeCallback: callback from unknown identity discarded", "user_id", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up subscriber %d: %w", userID, err)
	}

	switch cb.Data {
	case models.CallbackAcceptTask:
		return r.assigner.Accept(ctx, sub)
	case models.CallbackRejectTask:
		return r.assigner.Reject(ctx, sub)
	default:
		slog.Debug("Router.routeCallback: unknown callback payload discarded", "data", cb.Data, "subscriber_id", sub.ID)
		return nil
	}
}

// chatID returns the conversation to reply into, falling back to the
// sender's own chat.
func chatID(msg *models.Message, userID int64) int64 {
	if msg.Chat != nil {
		return msg.Chat.ID
	}
	return userID
}
