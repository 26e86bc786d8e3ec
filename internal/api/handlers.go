package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/util"
)

// subscribersHandler lists subscribers (GET) or removes one (DELETE ?id=).
func (s *Server) subscribersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		subs, err := s.store.GetSubscribers()
		if err != nil {
			slog.Error("Server.subscribersHandler: failed to list subscribers", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list subscribers"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(subs))
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing subscriber id"))
			return
		}
		sub, err := s.store.GetSubscriber(id)
		if err != nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Subscriber not found"))
			return
		}
		if err := s.store.DeleteSubscriber(id); err != nil {
			slog.Error("Server.subscribersHandler: failed to delete subscriber", "error", err, "id", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete subscriber"))
			return
		}
		// Allow the identity to register again.
		s.guard.Forget(sub.UserID)
		slog.Info("Server.subscribersHandler: subscriber removed", "id", id, "user_id", sub.UserID)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Subscriber removed", nil))
	default:
		w.Header().Set("Allow", "GET, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// tasksHandler lists tasks (GET), creates one (POST), or removes one (DELETE ?id=).
func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.store.GetTasks()
		if err != nil {
			slog.Error("Server.tasksHandler: failed to list tasks", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list tasks"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(tasks))
	case http.MethodPost:
		var t models.Task
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			slog.Warn("Server.tasksHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if t.Type == "" {
			t.Type = models.TaskTypeGroup
		}
		if err := t.Validate(); err != nil {
			slog.Warn("Server.tasksHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		t.ID = util.GenerateTaskID()
		t.Status = models.TaskStatusActive
		t.AcceptedBy = ""
		t.CreatedAt = time.Now()
		if err := s.store.AddTask(t); err != nil {
			slog.Error("Server.tasksHandler: failed to store task", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store task"))
			return
		}
		slog.Info("Server.tasksHandler: task created", "id", t.ID, "title", t.Title, "type", t.Type)
		writeJSONResponse(w, http.StatusCreated, models.Success(t))
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing task id"))
			return
		}
		if err := s.store.DeleteTask(id); err != nil {
			if errors.Is(err, models.ErrTaskNotFound) {
				writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
				return
			}
			slog.Error("Server.tasksHandler: failed to delete task", "error", err, "id", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete task"))
			return
		}
		slog.Info("Server.tasksHandler: task removed", "id", id)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Task removed", nil))
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// taskRequest is the body for task-targeted actions.
type taskRequest struct {
	TaskID string `json:"task_id"`
}

// taskSendHandler dispatches an active task's offer to its recipients.
func (s *Server) taskSendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing task_id"))
		return
	}
	sent, err := s.dispatcher.SendTask(r.Context(), req.TaskID)
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
	case errors.Is(err, models.ErrTaskNotAcceptable):
		writeJSONResponse(w, http.StatusConflict, models.Error("Task is not active"))
	case err != nil:
		slog.Error("Server.taskSendHandler: dispatch failed", "error", err, "task_id", req.TaskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send task"))
	default:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Task sent", map[string]int{"sent": sent}))
	}
}

// taskCompleteHandler marks an in-progress task completed.
func (s *Server) taskCompleteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing task_id"))
		return
	}
	err := s.dispatcher.CompleteTask(r.Context(), req.TaskID)
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
	case errors.Is(err, models.ErrTaskNotInProgress):
		writeJSONResponse(w, http.StatusConflict, models.Error("Task is not in progress"))
	case err != nil:
		slog.Error("Server.taskCompleteHandler: completion failed", "error", err, "task_id", req.TaskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to complete task"))
	default:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Task completed", nil))
	}
}

// messageRequest is the body for direct operator messages.
type messageRequest struct {
	SubscriberID string `json:"subscriber_id"`
	Text         string `json:"text"`
}

// messagesHandler sends a direct message to one technician.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Text == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyMessageBody.Error()))
		return
	}
	if len(req.Text) > models.MaxMessageBodyLength {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMessageBodyTooLong.Error()))
		return
	}
	err := s.dispatcher.SendDirect(r.Context(), req.SubscriberID, req.Text)
	switch {
	case errors.Is(err, models.ErrSubscriberNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Subscriber not found"))
	case err != nil:
		slog.Error("Server.messagesHandler: send failed", "error", err, "subscriber_id", req.SubscriberID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
	default:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent", nil))
	}
}

// notificationsHandler lists the operator notification feed.
func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	notifications, err := s.store.GetNotifications()
	if err != nil {
		slog.Error("Server.notificationsHandler: failed to list notifications", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list notifications"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(notifications))
}

// pollerStartHandler starts the ingestion loop.
func (s *Server) pollerStartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.poller.Start(r.Context()); err != nil {
		slog.Error("Server.pollerStartHandler: start failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to start polling: "+err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Polling started", nil))
}

// pollerStopHandler stops the ingestion loop at the next tick boundary.
func (s *Server) pollerStopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.poller.Stop()
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Polling stopped", nil))
}

// stats aggregates dashboard headline numbers.
type stats struct {
	TotalSubscribers  int     `json:"total_subscribers"`
	ActiveSubscribers int     `json:"active_subscribers"`
	ActiveTasks       int     `json:"active_tasks"`
	InProgressTasks   int     `json:"in_progress_tasks"`
	CompletedTasks    int     `json:"completed_tasks"`
	TotalEarnings     float64 `json:"total_earnings"`
	PollerRunning     bool    `json:"poller_running"`
	Cursor            int64   `json:"cursor"`
}

// statsHandler reports subscriber/task/earnings aggregates.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	subs, err := s.store.GetSubscribers()
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load subscribers"))
		return
	}
	tasks, err := s.store.GetTasks()
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load tasks"))
		return
	}

	var out stats
	out.TotalSubscribers = len(subs)
	for _, sub := range subs {
		if sub.IsActive {
			out.ActiveSubscribers++
		}
		out.TotalEarnings += sub.TotalEarnings
	}
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusActive:
			out.ActiveTasks++
		case models.TaskStatusInProgress:
			out.InProgressTasks++
		case models.TaskStatusCompleted:
			out.CompletedTasks++
		}
	}
	out.PollerRunning = s.poller.Running()
	out.Cursor = s.poller.Cursor()
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}
