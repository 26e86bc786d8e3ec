package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/taskbot/internal/dispatch"
	"github.com/fieldops/taskbot/internal/ingest"
	"github.com/fieldops/taskbot/internal/messaging"
	"github.com/fieldops/taskbot/internal/models"
	"github.com/fieldops/taskbot/internal/notify"
	"github.com/fieldops/taskbot/internal/store"
	"github.com/fieldops/taskbot/internal/telegram"
)

// testServer wires a Server over in-memory components.
type testServer struct {
	server *Server
	store  *store.InMemoryStore
	client *telegram.MockClient
	guard  *ingest.Guard
	poller *ingest.Poller
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewInMemoryStore()
	client := telegram.NewMockClient()
	sender := messaging.NewSender(client, st)
	emitter := notify.NewEmitter(st)
	assigner := dispatch.NewAssigner(st, sender, emitter)
	dispatcher := dispatch.NewDispatcher(st, sender, emitter, dispatch.WithSendDelay(0))
	guard := ingest.NewGuard()
	router := ingest.NewRouter(st, guard, client, sender, assigner, emitter)
	poller := ingest.NewPoller(client, router, ingest.WithPollTimeout(time.Millisecond))
	return &testServer{
		server: NewServer(st, dispatcher, poller, guard),
		store:  st,
		client: client,
		guard:  guard,
		poller: poller,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	ts.server.httpServer.Handler.ServeHTTP(w, req)

	var resp models.APIResponse
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func TestListSubscribers(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddSubscriber(models.Subscriber{ID: "s_a", UserID: 100, FirstName: "Ada", IsActive: true, JoinedAt: time.Now()})

	w, resp := ts.do(t, http.MethodGet, "/subscribers", "")
	if w.Code != http.StatusOK || resp.Status != string(models.APIStatusOK) {
		t.Fatalf("GET /subscribers = %d %+v", w.Code, resp)
	}
	list, ok := resp.Result.([]interface{})
	if !ok || len(list) != 1 {
		t.Errorf("result = %v, want one subscriber", resp.Result)
	}
}

func TestDeleteSubscriber(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddSubscriber(models.Subscriber{ID: "s_a", UserID: 100, FirstName: "Ada", IsActive: true, JoinedAt: time.Now()})
	ts.guard.MarkRegistered(100)

	w, _ := ts.do(t, http.MethodDelete, "/subscribers?id=s_a", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE /subscribers = %d", w.Code)
	}
	if _, err := ts.store.GetSubscriber("s_a"); err == nil {
		t.Error("subscriber should be removed")
	}
	if ts.guard.IsRegistered(100) {
		t.Error("identity should be forgotten so it can register again")
	}

	w, _ = ts.do(t, http.MethodDelete, "/subscribers?id=s_missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("DELETE unknown subscriber = %d, want 404", w.Code)
	}
	w, _ = ts.do(t, http.MethodDelete, "/subscribers", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("DELETE without id = %d, want 400", w.Code)
	}
}

func TestCreateTask(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(t, http.MethodPost, "/tasks", `{"title":"Install modem","description":"ASAP","expected_cost":40}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /tasks = %d %+v", w.Code, resp)
	}

	tasks, _ := ts.store.GetTasks()
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	task := tasks[0]
	if task.Type != models.TaskTypeGroup {
		t.Errorf("type = %q, want group default", task.Type)
	}
	if task.Status != models.TaskStatusActive {
		t.Errorf("status = %q, want active", task.Status)
	}
	if !strings.HasPrefix(task.ID, "t_") {
		t.Errorf("ID = %q, want t_ prefix", task.ID)
	}
	if task.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set server-side")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(t, http.MethodPost, "/tasks", `{"description":"no title"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /tasks without title = %d, want 400", w.Code)
	}
	if !strings.Contains(resp.Message, "title") {
		t.Errorf("message = %q, want title validation error", resp.Message)
	}

	w, _ = ts.do(t, http.MethodPost, "/tasks", `{"title":"x","type":"individual"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST individual task without targets = %d, want 400", w.Code)
	}

	w, _ = ts.do(t, http.MethodPost, "/tasks", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST invalid JSON = %d, want 400", w.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddTask(models.Task{ID: "t_1", Title: "Old", Type: models.TaskTypeGroup, Status: models.TaskStatusActive, CreatedAt: time.Now()})

	w, _ := ts.do(t, http.MethodDelete, "/tasks?id=t_1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE /tasks = %d", w.Code)
	}
	if _, err := ts.store.GetTask("t_1"); err == nil {
		t.Error("task should be removed")
	}

	w, _ = ts.do(t, http.MethodDelete, "/tasks?id=t_missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("DELETE unknown task = %d, want 404", w.Code)
	}
	w, _ = ts.do(t, http.MethodDelete, "/tasks", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("DELETE without id = %d, want 400", w.Code)
	}
}

func TestSendTaskEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddSubscriber(models.Subscriber{ID: "s_a", UserID: 100, FirstName: "Ada", IsActive: true, JoinedAt: time.Now()})
	ts.store.AddTask(models.Task{ID: "t_1", Title: "Install modem", Type: models.TaskTypeGroup, Status: models.TaskStatusActive, CreatedAt: time.Now()})

	w, resp := ts.do(t, http.MethodPost, "/tasks/send", `{"task_id":"t_1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /tasks/send = %d %+v", w.Code, resp)
	}
	if msgs := ts.client.SentTo(100); len(msgs) != 1 || !msgs[0].WithOffer {
		t.Errorf("sent = %+v, want one offer", msgs)
	}

	w, _ = ts.do(t, http.MethodPost, "/tasks/send", `{"task_id":"t_missing"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("send unknown task = %d, want 404", w.Code)
	}
	w, _ = ts.do(t, http.MethodPost, "/tasks/send", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("send without task_id = %d, want 400", w.Code)
	}
}

func TestSendTaskNotActiveEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddTask(models.Task{ID: "t_1", Title: "Done", Type: models.TaskTypeGroup, Status: models.TaskStatusCompleted, CreatedAt: time.Now()})

	w, _ := ts.do(t, http.MethodPost, "/tasks/send", `{"task_id":"t_1"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("send non-active task = %d, want 409", w.Code)
	}
}

func TestCompleteTaskEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddSubscriber(models.Subscriber{ID: "s_a", UserID: 100, FirstName: "Ada", IsActive: true, JoinedAt: time.Now()})
	ts.store.AddTask(models.Task{ID: "t_1", Title: "Install", Type: models.TaskTypeGroup, ExpectedCost: 60, Status: models.TaskStatusInProgress, AcceptedBy: "s_a", CreatedAt: time.Now()})

	w, _ := ts.do(t, http.MethodPost, "/tasks/complete", `{"task_id":"t_1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /tasks/complete = %d", w.Code)
	}
	sub, _ := ts.store.GetSubscriber("s_a")
	if sub.TasksCompleted != 1 || sub.TotalEarnings != 60 {
		t.Errorf("credit = %d tasks, %.2f earnings", sub.TasksCompleted, sub.TotalEarnings)
	}

	// Completing again conflicts.
	w, _ = ts.do(t, http.MethodPost, "/tasks/complete", `{"task_id":"t_1"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("repeat completion = %d, want 409", w.Code)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddSubscriber(models.Subscriber{ID: "s_a", UserID: 100, FirstName: "Ada", IsActive: true, JoinedAt: time.Now()})

	w, _ := ts.do(t, http.MethodPost, "/messages", `{"subscriber_id":"s_a","text":"Call the office"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /messages = %d", w.Code)
	}
	if msgs := ts.client.SentTo(100); len(msgs) != 1 || msgs[0].Text != "Call the office" {
		t.Errorf("sent = %+v", msgs)
	}

	w, _ = ts.do(t, http.MethodPost, "/messages", `{"subscriber_id":"s_a","text":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty text = %d, want 400", w.Code)
	}
	w, _ = ts.do(t, http.MethodPost, "/messages", `{"subscriber_id":"s_missing","text":"hi"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown subscriber = %d, want 404", w.Code)
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddNotification(models.Notification{ID: "n_1", Type: models.NotificationTypeSystem, Title: "Event", Timestamp: time.Now()})

	w, resp := ts.do(t, http.MethodGet, "/notifications", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /notifications = %d", w.Code)
	}
	list, ok := resp.Result.([]interface{})
	if !ok || len(list) != 1 {
		t.Errorf("result = %v, want one notification", resp.Result)
	}
}

func TestPollerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPost, "/poller/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /poller/start = %d", w.Code)
	}
	if !ts.poller.Running() {
		t.Error("poller should be running after start")
	}

	w, _ = ts.do(t, http.MethodPost, "/poller/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /poller/stop = %d", w.Code)
	}
	if ts.poller.Running() {
		t.Error("poller should be stopped after stop")
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddSubscriber(models.Subscriber{ID: "s_a", UserID: 100, FirstName: "Ada", IsActive: true, TotalEarnings: 120, JoinedAt: time.Now()})
	ts.store.AddSubscriber(models.Subscriber{ID: "s_b", UserID: 200, FirstName: "Bob", IsActive: false, JoinedAt: time.Now()})
	ts.store.AddTask(models.Task{ID: "t_1", Title: "A", Type: models.TaskTypeGroup, Status: models.TaskStatusActive, CreatedAt: time.Now()})
	ts.store.AddTask(models.Task{ID: "t_2", Title: "B", Type: models.TaskTypeGroup, Status: models.TaskStatusInProgress, AcceptedBy: "s_a", CreatedAt: time.Now()})
	ts.store.AddTask(models.Task{ID: "t_3", Title: "C", Type: models.TaskTypeGroup, Status: models.TaskStatusCompleted, AcceptedBy: "s_a", CreatedAt: time.Now()})

	w, resp := ts.do(t, http.MethodGet, "/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /stats = %d", w.Code)
	}
	got, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result = %v", resp.Result)
	}
	checks := map[string]float64{
		"total_subscribers":  2,
		"active_subscribers": 1,
		"active_tasks":       1,
		"in_progress_tasks":  1,
		"completed_tasks":    1,
		"total_earnings":     120,
	}
	for key, want := range checks {
		if got[key].(float64) != want {
			t.Errorf("stats[%s] = %v, want %v", key, got[key], want)
		}
	}
	if got["poller_running"].(bool) {
		t.Error("poller_running should be false")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/subscribers"},
		{http.MethodPut, "/tasks"},
		{http.MethodGet, "/tasks/send"},
		{http.MethodGet, "/tasks/complete"},
		{http.MethodGet, "/messages"},
		{http.MethodPost, "/notifications"},
		{http.MethodGet, "/poller/start"},
		{http.MethodGet, "/poller/stop"},
		{http.MethodPost, "/stats"},
	}
	for _, tt := range tests {
		w, _ := ts.do(t, tt.method, tt.path, "")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tt.method, tt.path, w.Code)
		}
	}
}
