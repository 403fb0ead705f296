package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramClient posts messages to the outbound channel via the Bot API.
// One-way only: the engine never reads the channel.
type TelegramClient struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
}

// NewTelegramClient creates the client. An empty token disables posting;
// SendMessage then fails and the publisher records the attempt unposted.
func NewTelegramClient(token, chatID string) *TelegramClient {
	return &TelegramClient{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

// SendMessage posts one message and returns the channel's message id
func (c *TelegramClient) SendMessage(ctx context.Context, text string) (string, error) {
	if c.token == "" || c.chatID == "" {
		return "", fmt.Errorf("telegram transport not configured")
	}

	payload, err := json.Marshal(sendMessageRequest{ChatID: c.chatID, Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal telegram request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read telegram response: %w", err)
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode telegram response: %w", err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("telegram API error: %s", parsed.Description)
	}

	return fmt.Sprintf("%d", parsed.Result.MessageID), nil
}
