package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram sends notifications through the Bot API sendMessage method.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewTelegram(token string) *Telegram {
	return &Telegram{
		token:   token,
		baseURL: defaultTelegramAPI,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewTelegramWithBaseURL points the client at a non-default API host,
// used by the mock server and tests.
func NewTelegramWithBaseURL(token, baseURL string) *Telegram {
	t := NewTelegram(token)
	t.baseURL = baseURL
	return t
}

func (t *Telegram) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Send posts the message to the user's chat. HTTP 403/400/404 mean the
// chat is gone or the bot was blocked and are permanent; rate limiting,
// server errors and network failures are transient.
func (t *Telegram) Send(ctx context.Context, userID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: userID, Text: text})
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("marshaling request: %w", err)}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var apiResp sendMessageResponse
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	_ = json.Unmarshal(respBody, &apiResp)

	cause := fmt.Errorf("telegram API status %d: %s", resp.StatusCode, apiResp.Description)

	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusBadRequest, http.StatusNotFound:
		// bot blocked by the user, chat deleted, or chat never existed
		return &PermanentError{Err: cause}
	default:
		return &TransientError{Err: cause}
	}
}
