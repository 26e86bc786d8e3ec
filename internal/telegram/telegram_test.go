package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestClient returns a Client pointed at a test server.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(WithToken("test-token"), WithBaseURL(srv.URL), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(); !errors.Is(err, ErrMissingToken) {
		t.Errorf("NewClient() error = %v, want ErrMissingToken", err)
	}
}

func TestGetMe(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottest-token/getMe") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"username":"taskbot"}}`))
	})

	me, err := client.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe failed: %v", err)
	}
	if me.ID != 42 || me.Username != "taskbot" || !me.IsBot {
		t.Errorf("GetMe = %+v", me)
	}
}

func TestGetUpdates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("offset") != "10" {
			t.Errorf("offset = %q, want %q", q.Get("offset"), "10")
		}
		if q.Get("limit") != "100" {
			t.Errorf("limit = %q, want %q", q.Get("limit"), "100")
		}
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"from":{"id":7,"first_name":"Ada"},"chat":{"id":7},"text":"/start"}},
			{"update_id":11,"callback_query":{"id":"cb1","from":{"id":7},"data":"ACCEPT_TASK"}}
		]}`))
	})

	updates, err := client.GetUpdates(context.Background(), 10, time.Second, 100)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].UpdateID != 10 || updates[0].Message == nil || updates[0].Message.Text != "/start" {
		t.Errorf("first update = %+v", updates[0])
	}
	if updates[1].CallbackQuery == nil || updates[1].CallbackQuery.Data != "ACCEPT_TASK" {
		t.Errorf("second update = %+v", updates[1])
	}
}

func TestGetUpdatesConflict(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`))
	})

	_, err := client.GetUpdates(context.Background(), 0, time.Second, 100)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("GetUpdates error = %v, want ErrConflict", err)
	}
}

func TestSendMessageBlockedRecipient(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":          false,
			"error_code":  403,
			"description": BlockedDescription,
		})
	})

	err := client.SendMessage(context.Background(), 7, "hello")
	if !errors.Is(err, ErrRecipientBlocked) {
		t.Errorf("SendMessage error = %v, want ErrRecipientBlocked", err)
	}
}

func TestSendTaskOfferKeyboard(t *testing.T) {
	var payload map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	if err := client.SendTaskOffer(context.Background(), 7, "New task"); err != nil {
		t.Fatalf("SendTaskOffer failed: %v", err)
	}

	if payload["chat_id"].(float64) != 7 {
		t.Errorf("chat_id = %v, want 7", payload["chat_id"])
	}
	markup, ok := payload["reply_markup"].(map[string]interface{})
	if !ok {
		t.Fatal("reply_markup missing from offer payload")
	}
	rows, ok := markup["inline_keyboard"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Fatalf("inline_keyboard = %v, want one row", markup["inline_keyboard"])
	}
	buttons := rows[0].([]interface{})
	if len(buttons) != 2 {
		t.Fatalf("got %d buttons, want 2", len(buttons))
	}
	got := []string{
		buttons[0].(map[string]interface{})["callback_data"].(string),
		buttons[1].(map[string]interface{})["callback_data"].(string),
	}
	if got[0] != "ACCEPT_TASK" || got[1] != "REJECT_TASK" {
		t.Errorf("callback_data = %v, want [ACCEPT_TASK REJECT_TASK]", got)
	}
}

func TestSendMessagePlainHasNoKeyboard(t *testing.T) {
	var payload map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	if err := client.SendMessage(context.Background(), 7, "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, ok := payload["reply_markup"]; ok {
		t.Error("plain message should not carry reply_markup")
	}
}

func TestAnswerCallbackQuery(t *testing.T) {
	var gotID string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		gotID, _ = payload["callback_query_id"].(string)
		w.Write([]byte(`{"ok":true,"result":true}`))
	})

	if err := client.AnswerCallbackQuery(context.Background(), "cb42"); err != nil {
		t.Fatalf("AnswerCallbackQuery failed: %v", err)
	}
	if gotID != "cb42" {
		t.Errorf("callback_query_id = %q, want %q", gotID, "cb42")
	}
}

func TestClearWebhook(t *testing.T) {
	var methods []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		methods = append(methods, parts[len(parts)-1])
		w.Write([]byte(`{"ok":true,"result":true}`))
	})

	if err := client.ClearWebhook(context.Background()); err != nil {
		t.Fatalf("ClearWebhook failed: %v", err)
	}
	if len(methods) != 2 || methods[0] != "setWebhook" || methods[1] != "deleteWebhook" {
		t.Errorf("methods called = %v, want [setWebhook deleteWebhook]", methods)
	}
}

func TestDecodeResponseGenericError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	err := client.SendMessage(context.Background(), 7, "hello")
	if err == nil {
		t.Fatal("expected an error for a failed send")
	}
	if errors.Is(err, ErrRecipientBlocked) || errors.Is(err, ErrConflict) {
		t.Errorf("generic failure misclassified: %v", err)
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error should carry the API description, got %v", err)
	}
}
