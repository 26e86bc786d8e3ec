// Package notify converts internal events into operator-facing notifications.
//
// The notification feed is consumed by the dashboard; records are immutable
// once written and the core never reads them back.
package notify

import (
	"log/slog"
	"time"

	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/store"
	"github.com/fieldops/taskbot/internal/util"
)

// Emitter writes notifications to the store. Emission is best-effort: a
// storage failure is logged and swallowed so it can never interrupt event
// processing.
type Emitter struct {
	store store.Store
}

// NewEmitter creates an Emitter writing to the given store.
func NewEmitter(st store.Store) *Emitter {
	return &Emitter{store: st}
}

// Emit records one notification. subscriberID may be empty for system events.
func (e *Emitter) Emit(typ models.NotificationType, title, message, subscriberID string) {
	n := models.Notification{
		ID:           util.GenerateNotificationID(),
		Type:         typ,
		Title:        title,
		Message:      message,
		SubscriberID: subscriberID,
		Timestamp:    time.Now(),
	}
	if err := e.store.AddNotification(n); err != nil {
		slog.Error("Emitter.Emit: failed to store notification", "error", err, "type", typ, "title", title)
		return
	}
	slog.Debug("Emitter.Emit: notification recorded", "type", typ, "title", title, "subscriber_id", subscriberID)
}
