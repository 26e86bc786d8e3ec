// Package models defines the core data structures for TaskBot.
//
// It includes the subscriber, task, and notification domain types shared
// across modules, plus the Telegram wire types consumed by the ingest engine.
package models

import (
	"errors"
	"time"
)

// TaskType defines how a task's recipients are determined.
type TaskType string

const (
	// TaskTypeIndividual targets the explicit TargetUsers list.
	TaskTypeIndividual TaskType = "individual"
	// TaskTypeGroup broadcasts to all currently active subscribers.
	TaskTypeGroup TaskType = "group"
)

// TaskStatus represents a task's position in its lifecycle.
type TaskStatus string

const (
	// TaskStatusActive means the task is open and offered to recipients.
	TaskStatusActive TaskStatus = "active"
	// TaskStatusInProgress means a subscriber accepted the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted means the accepted task was finished.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusExpired means the task passed its deadline unfinished.
	TaskStatusExpired TaskStatus = "expired"
)

// NotificationType classifies operator-facing notifications.
type NotificationType string

const (
	// NotificationTypeNewSubscriber is emitted when a technician registers.
	NotificationTypeNewSubscriber NotificationType = "new_subscriber"
	// NotificationTypeTaskAccepted is emitted when a technician accepts a task.
	NotificationTypeTaskAccepted NotificationType = "task_accepted"
	// NotificationTypeTaskRejected is emitted when a technician rejects a task offer.
	NotificationTypeTaskRejected NotificationType = "task_rejected"
	// NotificationTypeTaskCompleted is emitted when an operator marks a task completed.
	NotificationTypeTaskCompleted NotificationType = "task_completed"
	// NotificationTypeTechnicianMessage carries free-text sent by a technician.
	NotificationTypeTechnicianMessage NotificationType = "technician_message"
	// NotificationTypeSystem covers operational events (polling state, expiry).
	NotificationTypeSystem NotificationType = "system"
)

// Callback payload tokens attached to task offer buttons. These are the only
// two recognized callback values; anything else is discarded by the router.
const (
	CallbackAcceptTask = "ACCEPT_TASK"
	CallbackRejectTask = "REJECT_TASK"
)

// RegistrationCommand is the distinguished text token that triggers the
// registration path.
const RegistrationCommand = "/start"

// Validation constants for input validation
const (
	// MaxTaskTitleLength defines the maximum allowed length for task titles
	MaxTaskTitleLength = 200
	// MaxTaskDescriptionLength defines the maximum allowed length for task descriptions
	MaxTaskDescriptionLength = 4096
	// MaxMessageBodyLength defines the maximum allowed length for outbound message bodies
	MaxMessageBodyLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyTaskTitle       = errors.New("task title cannot be empty")
	ErrTaskTitleTooLong     = errors.New("task title exceeds maximum length")
	ErrTaskDescriptionLong  = errors.New("task description exceeds maximum length")
	ErrInvalidTaskType      = errors.New("invalid task type")
	ErrMissingTargetUsers   = errors.New("target users are required for individual tasks")
	ErrNegativeExpectedCost = errors.New("expected cost cannot be negative")
	ErrEmptyMessageBody     = errors.New("message body cannot be empty")
	ErrMessageBodyTooLong   = errors.New("message body exceeds maximum length")
	ErrSubscriberNotFound   = errors.New("subscriber not found")
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskNotAcceptable    = errors.New("task is not active or already accepted")
	ErrTaskNotInProgress    = errors.New("task is not in progress")
)

// IsValidTaskType checks if the given task type is supported.
func IsValidTaskType(tt TaskType) bool {
	switch tt {
	case TaskTypeIndividual, TaskTypeGroup:
		return true
	default:
		return false
	}
}

// Subscriber is a registered technician reachable over the chat channel.
type Subscriber struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"user_id"` // stable Telegram identity
	Username       string    `json:"username,omitempty"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name,omitempty"`
	Profession     string    `json:"profession,omitempty"`
	IsActive       bool      `json:"is_active"`
	TasksCompleted int       `json:"tasks_completed"`
	TotalEarnings  float64   `json:"total_earnings"`
	JoinedAt       time.Time `json:"joined_at"`
}

// DisplayName returns the subscriber's human-readable name.
func (s *Subscriber) DisplayName() string {
	if s.LastName != "" {
		return s.FirstName + " " + s.LastName
	}
	return s.FirstName
}

// Task is a unit of dispatched field work.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Type         TaskType   `json:"type"`
	TargetUsers  []string   `json:"target_users,omitempty"` // subscriber IDs for individual tasks
	ExpectedCost float64    `json:"expected_cost"`
	Status       TaskStatus `json:"status"`
	AcceptedBy   string     `json:"accepted_by,omitempty"` // subscriber ID, at most one
	Deadline     time.Time  `json:"deadline,omitzero"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate performs comprehensive validation on a Task structure.
func (t *Task) Validate() error {
	if t.Title == "" {
		return ErrEmptyTaskTitle
	}
	if len(t.Title) > MaxTaskTitleLength {
		return ErrTaskTitleTooLong
	}
	if len(t.Description) > MaxTaskDescriptionLength {
		return ErrTaskDescriptionLong
	}
	if !IsValidTaskType(t.Type) {
		return ErrInvalidTaskType
	}
	if t.Type == TaskTypeIndividual && len(t.TargetUsers) == 0 {
		return ErrMissingTargetUsers
	}
	if t.ExpectedCost < 0 {
		return ErrNegativeExpectedCost
	}
	return nil
}

// Targets reports whether the task is offered to the given subscriber,
// either explicitly or via broadcast.
func (t *Task) Targets(subscriberID string) bool {
	if t.Type == TaskTypeGroup {
		return true
	}
	for _, id := range t.TargetUsers {
		if id == subscriberID {
			return true
		}
	}
	return false
}

// Notification is an immutable operator-facing record of a system event.
type Notification struct {
	ID           string           `json:"id"`
	Type         NotificationType `json:"type"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	SubscriberID string           `json:"subscriber_id,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Telegram wire types. Field names follow the Bot API JSON contract; only
// the fields the engine reads are modeled.

// Update is one event returned by getUpdates. UpdateID is strictly
// increasing across the bot's event stream.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      *Chat  `json:"chat,omitempty"`
	Text      string `json:"text,omitempty"`
	Date      int64  `json:"date,omitempty"`
}

// CallbackQuery is an inline-button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"` // originating offer message
	Data    string   `json:"data,omitempty"`    // opaque payload token
}

// User identifies a remote chat participant.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
