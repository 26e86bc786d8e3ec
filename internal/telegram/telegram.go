// Package telegram wraps the Telegram Bot API for TaskBot.
//
// It provides methods for long-polling updates, sending messages (optionally
// with the task-offer inline keyboard), and acknowledging button presses.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fieldops/taskbot/internal/models"
)

// Constants for Telegram client configuration
const (
	// DefaultBaseURL is the default Telegram Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"
	// DefaultRequestTimeout bounds non-polling API calls.
	DefaultRequestTimeout = 30 * time.Second
	// BlockedDescription is the Bot API error description returned when the
	// recipient has blocked the bot.
	BlockedDescription = "Forbidden: bot was blocked by the user"
)

// Error variables for transport failure classification
var (
	// ErrRecipientBlocked indicates the recipient blocked the bot. The caller
	// should deactivate the corresponding subscriber rather than retry.
	ErrRecipientBlocked = errors.New("recipient blocked the bot")
	// ErrConflict indicates another consumer is polling with the same cursor
	// (HTTP 409). Transient; the polling loop logs and continues.
	ErrConflict = errors.New("conflicting getUpdates consumer")
	// ErrMissingToken indicates the client was constructed without a bot token.
	ErrMissingToken = errors.New("bot token not set")
)

// Sender is the transport surface the engine depends on (for production and testing).
type Sender interface {
	// GetMe validates connectivity and returns the bot's own identity.
	GetMe(ctx context.Context) (*models.User, error)
	// GetUpdates long-polls for updates past offset-1, returning them in order.
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration, limit int) ([]models.Update, error)
	// SendMessage delivers a plain text message to one chat.
	SendMessage(ctx context.Context, chatID int64, text string) error
	// SendTaskOffer delivers a message with the two-button accept/reject keyboard.
	SendTaskOffer(ctx context.Context, chatID int64, text string) error
	// AnswerCallbackQuery acknowledges a button press so the client clears its
	// pending state. Fire-and-forget.
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	// ClearWebhook best-effort removes any push-delivery registration so
	// polling is the only active channel.
	ClearWebhook(ctx context.Context) error
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token      string        // bot token issued by BotFather
	BaseURL    string        // API endpoint override (tests)
	HTTPClient *http.Client  // HTTP client override (tests)
	Timeout    time.Duration // per-request timeout for non-polling calls
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithBaseURL overrides the Telegram Bot API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(o *Opts) {
		o.BaseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = client
	}
}

// WithTimeout sets the per-request timeout for non-polling calls.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// Client is a thin wrapper over the Telegram Bot API HTTP surface.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a new Telegram client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Telegram NewClient options set", "token_set", cfg.Token != "", "base_url_set", cfg.BaseURL != "")

	if cfg.Token == "" {
		slog.Error("Telegram client bot token not set")
		return nil, ErrMissingToken
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		token:      cfg.Token,
		baseURL:    baseURL,
		httpClient: httpClient,
		timeout:    timeout,
	}, nil
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// inlineKeyboardButton is one button of an inline keyboard.
type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// offerKeyboard returns the two-button accept/reject markup attached to
// every task offer. The callback_data values are the only tokens the
// router recognizes.
func offerKeyboard() map[string]interface{} {
	return map[string]interface{}{
		"inline_keyboard": [][]inlineKeyboardButton{{
			{Text: "✅ OK", CallbackData: models.CallbackAcceptTask},
			{Text: "❌ NO", CallbackData: models.CallbackRejectTask},
		}},
	}
}

// methodURL builds the URL for a Bot API method call.
func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call POSTs a JSON payload to a Bot API method and decodes the response envelope.
func (c *Client) call(ctx context.Context, method string, payload interface{}) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(method, resp)
}

// decodeResponse parses a Bot API response envelope and classifies failures.
func decodeResponse(method string, resp *http.Response) (*apiResponse, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response (http %d): %w", method, resp.StatusCode, err)
	}
	if out.OK {
		return &out, nil
	}

	switch {
	case resp.StatusCode == http.StatusConflict || out.ErrorCode == http.StatusConflict:
		return nil, fmt.Errorf("%s: %w", method, ErrConflict)
	case out.Description == BlockedDescription:
		return nil, fmt.Errorf("%s: %w", method, ErrRecipientBlocked)
	default:
		return nil, fmt.Errorf("%s failed (code %d): %s", method, out.ErrorCode, out.Description)
	}
}

// GetMe validates connectivity and returns the bot's identity.
func (c *Client) GetMe(ctx context.Context) (*models.User, error) {
	slog.Debug("Telegram GetMe invoked")
	resp, err := c.call(ctx, "getMe", map[string]interface{}{})
	if err != nil {
		slog.Error("Telegram GetMe failed", "error", err)
		return nil, err
	}
	var me models.User
	if err := json.Unmarshal(resp.Result, &me); err != nil {
		return nil, fmt.Errorf("failed to decode getMe result: %w", err)
	}
	slog.Debug("Telegram GetMe succeeded", "bot_id", me.ID, "username", me.Username)
	return &me, nil
}

// GetUpdates long-polls for updates with update_id >= offset.
// The request timeout is the long-poll window plus headroom, so a quiet
// window is not reported as an error.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration, limit int) ([]models.Update, error) {
	secs := int(timeout / time.Second)
	if secs < 0 {
		secs = 0
	}

	q := url.Values{}
	q.Set("timeout", strconv.Itoa(secs))
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build getUpdates request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := decodeResponse("getUpdates", resp)
	if err != nil {
		return nil, err
	}

	var updates []models.Update
	if err := json.Unmarshal(out.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates result: %w", err)
	}
	slog.Debug("Telegram GetUpdates succeeded", "offset", offset, "count", len(updates))
	return updates, nil
}

// SendMessage delivers a plain text message to one chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.sendMessage(ctx, chatID, text, nil)
}

// SendTaskOffer delivers a message with the accept/reject inline keyboard attached.
func (c *Client) SendTaskOffer(ctx context.Context, chatID int64, text string) error {
	return c.sendMessage(ctx, chatID, text, offerKeyboard())
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, text string, replyMarkup map[string]interface{}) error {
	slog.Debug("Telegram sendMessage invoked", "chat_id", chatID, "body_length", len(text), "with_keyboard", replyMarkup != nil)
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if replyMarkup != nil {
		payload["reply_markup"] = replyMarkup
	}
	if _, err := c.call(ctx, "sendMessage", payload); err != nil {
		slog.Error("Telegram sendMessage failed", "error", err, "chat_id", chatID)
		return err
	}
	slog.Debug("Telegram sendMessage succeeded", "chat_id", chatID)
	return nil
}

// AnswerCallbackQuery acknowledges a button press. Fire-and-forget: it is
// independent of the business outcome of the press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	slog.Debug("Telegram AnswerCallbackQuery invoked", "callback_id", callbackID)
	if _, err := c.call(ctx, "answerCallbackQuery", map[string]interface{}{"callback_query_id": callbackID}); err != nil {
		slog.Warn("Telegram AnswerCallbackQuery failed", "error", err, "callback_id", callbackID)
		return err
	}
	return nil
}

// ClearWebhook removes any webhook registration so getUpdates is the only
// delivery channel. Both calls are issued best-effort; the first error is
// returned for logging but callers are expected to ignore it.
func (c *Client) ClearWebhook(ctx context.Context) error {
	slog.Debug("Telegram ClearWebhook invoked")
	_, err := c.call(ctx, "setWebhook", map[string]interface{}{"url": "", "drop_pending_updates": false})
	if _, derr := c.call(ctx, "deleteWebhook", map[string]interface{}{"drop_pending_updates": false}); err == nil {
		err = derr
	}
	if err != nil {
		slog.Warn("Telegram ClearWebhook failed", "error", err)
	}
	return err
}
