package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Bot struct {
	baseURL string
	client  *http.Client
}

func NewBot(token string) *Bot {
	return &Bot{
		baseURL: "https://api.telegram.org/bot" + token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the bot at another API host (self-hosted Bot API, tests).
func (b *Bot) WithBaseURL(baseURL string) *Bot {
	b.baseURL = strings.TrimRight(baseURL, "/")
	return b
}

func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	params := url.Values{}
	params.Add("chat_id", chatID)
	params.Add("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/sendMessage", strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: %s", resp.Status)
	}
	return nil
}
