package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramBot posts messages through the Telegram Bot API.
type TelegramBot struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegramBot creates a bot client with a 10-second HTTP timeout. An empty
// baseURL selects the public Bot API.
func NewTelegramBot(token, baseURL string) *TelegramBot {
	if baseURL == "" {
		baseURL = defaultTelegramAPI
	}
	return &TelegramBot{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SendTo posts text to chatID using Markdown parse mode.
func (b *TelegramBot) SendTo(ctx context.Context, chatID, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)

	body, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// TelegramSender is the operator alert channel: a bot bound to one chat.
type TelegramSender struct {
	bot    *TelegramBot
	chatID string
}

// NewTelegramSender creates a TelegramSender posting to chatID.
func NewTelegramSender(bot *TelegramBot, chatID string) *TelegramSender {
	return &TelegramSender{bot: bot, chatID: chatID}
}

// Send posts the alert with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return t.bot.SendTo(ctx, t.chatID, fmt.Sprintf("*%s*\n%s", title, message))
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
