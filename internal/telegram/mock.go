package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/fieldops/taskbot/internal/models"
)

// MockClient implements Sender without network access (for tests).
// Sent messages and acknowledged callbacks are recorded for assertions, and
// per-chat send errors can be scripted to exercise failure classification.
type MockClient struct {
	mu sync.Mutex

	// Updates is drained batch-by-batch by GetUpdates.
	Updates [][]models.Update
	// SendErrors maps chat ID to the error SendMessage/SendTaskOffer returns.
	SendErrors map[int64]error
	// GetUpdatesErr, when set, is returned by every GetUpdates call.
	GetUpdatesErr error
	// GetMeErr, when set, is returned by every GetMe call.
	GetMeErr error

	Sent             []MockSentMessage
	AnsweredCallback []string
	WebhookCleared   int
}

// MockSentMessage records one outbound send.
type MockSentMessage struct {
	ChatID    int64
	Text      string
	WithOffer bool
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{SendErrors: make(map[int64]error)}
}

func (m *MockClient) GetMe(ctx context.Context) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetMeErr != nil {
		return nil, m.GetMeErr
	}
	return &models.User{ID: 1, IsBot: true, Username: "taskbot_test"}, nil
}

func (m *MockClient) GetUpdates(ctx context.Context, offset int64, timeout time.Duration, limit int) ([]models.Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetUpdatesErr != nil {
		return nil, m.GetUpdatesErr
	}
	if len(m.Updates) == 0 {
		return nil, nil
	}
	batch := m.Updates[0]
	m.Updates = m.Updates[1:]

	// Honor the offset the way the real API does: already-consumed updates
	// are never returned again.
	var out []models.Update
	for _, u := range batch {
		if u.UpdateID >= offset {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MockClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.record(chatID, text, false)
}

func (m *MockClient) SendTaskOffer(ctx context.Context, chatID int64, text string) error {
	return m.record(chatID, text, true)
}

func (m *MockClient) record(chatID int64, text string, offer bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SendErrors[chatID]; err != nil {
		return err
	}
	m.Sent = append(m.Sent, MockSentMessage{ChatID: chatID, Text: text, WithOffer: offer})
	return nil
}

func (m *MockClient) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AnsweredCallback = append(m.AnsweredCallback, callbackID)
	return nil
}

func (m *MockClient) ClearWebhook(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookCleared++
	return nil
}

// SentTo returns the messages sent to the given chat.
func (m *MockClient) SentTo(chatID int64) []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockSentMessage
	for _, s := range m.Sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}
