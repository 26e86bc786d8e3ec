package store

import (
	"sync"

	"github.com/fieldops/taskbot/internal/models"
)

// InMemoryStore is a mutex-guarded in-memory Store, used when no database
// DSN is configured and throughout the test suite. Slices preserve
// insertion order per the Store contract.
type InMemoryStore struct {
	mu            sync.RWMutex
	subscribers   []models.Subscriber
	tasks         []models.Task
	notifications []models.Notification
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddSubscriber(sub models.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
	return nil
}

func (s *InMemoryStore) GetSubscriber(id string) (*models.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.subscribers {
		if s.subscribers[i].ID == id {
			sub := s.subscribers[i]
			return &sub, nil
		}
	}
	return nil, models.ErrSubscriberNotFound
}

func (s *InMemoryStore) GetSubscriberByUserID(userID int64) (*models.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.subscribers {
		if s.subscribers[i].UserID == userID {
			sub := s.subscribers[i]
			return &sub, nil
		}
	}
	return nil, models.ErrSubscriberNotFound
}

func (s *InMemoryStore) GetSubscribers() ([]models.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Subscriber, len(s.subscribers))
	copy(out, s.subscribers)
	return out, nil
}

func (s *InMemoryStore) UpdateSubscriber(sub models.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subscribers {
		if s.subscribers[i].ID == sub.ID {
			s.subscribers[i] = sub
			return nil
		}
	}
	return models.ErrSubscriberNotFound
}

func (s *InMemoryStore) DeleteSubscriber(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subscribers {
		if s.subscribers[i].ID == id {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return nil
		}
	}
	return models.ErrSubscriberNotFound
}

func (s *InMemoryStore) AddTask(t models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *InMemoryStore) GetTask(id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			t := s.tasks[i]
			return &t, nil
		}
	}
	return nil, models.ErrTaskNotFound
}

func (s *InMemoryStore) GetTasks() ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out, nil
}

func (s *InMemoryStore) UpdateTask(t models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == t.ID {
			s.tasks[i] = t
			return nil
		}
	}
	return models.ErrTaskNotFound
}

func (s *InMemoryStore) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return models.ErrTaskNotFound
}

func (s *InMemoryStore) AddNotification(n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *InMemoryStore) GetNotifications() ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
