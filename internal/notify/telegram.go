package notify

import (
	"context"
	"fmt"
	"strings"
)

// TelegramAPI is the Bot API base URL.
const TelegramAPI = "https://api.telegram.org"

// TelegramSender posts to a chat through the Telegram Bot API.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
}

// NewTelegramSender creates a TelegramSender. An empty apiBase uses
// TelegramAPI.
func NewTelegramSender(apiBase, token, chatID string) *TelegramSender {
	if apiBase == "" {
		apiBase = TelegramAPI
	}
	return &TelegramSender{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		chatID:  chatID,
	}
}

// Send calls sendMessage with the title in bold. Plain text is used for the
// body so error messages need no escaping.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	return postJSON(ctx, defaultClient, t.Name(), url, map[string]string{
		"chat_id": t.chatID,
		"text":    title + "\n" + message,
	})
}

func (t *TelegramSender) Name() string { return "telegram" }
