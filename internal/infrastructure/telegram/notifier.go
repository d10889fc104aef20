// Package telegram delivers operator notifications through the Telegram Bot
// API. The core never calls it directly; the pipeline drives it behind the
// domain.Notifier interface.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// startupCooldown suppresses repeated startup messages when the process is
// crash-looping under a supervisor.
const startupCooldown = 10 * time.Minute

type Notifier struct {
	client      *http.Client
	botToken    string
	chatID      string
	lastStartup atomic.Int64 // unix seconds
}

func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		client:   &http.Client{Timeout: 10 * time.Second},
		botToken: botToken,
		chatID:   chatID,
	}
}

// Notify posts a message to the configured chat. The title is rendered bold
// with HTML parse mode.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)

	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       fmt.Sprintf("<b>%s</b>\n%s", title, message),
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
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

// NotifyStartup sends the startup banner unless one went out within the
// cooldown window.
func (n *Notifier) NotifyStartup(ctx context.Context, symbol string, testnet bool) error {
	now := time.Now().Unix()
	last := n.lastStartup.Load()
	if now-last < int64(startupCooldown.Seconds()) {
		return nil
	}
	if !n.lastStartup.CompareAndSwap(last, now) {
		return nil
	}

	network := "MAINNET"
	if testnet {
		network = "TESTNET"
	}
	return n.Notify(ctx, "Bot Started", fmt.Sprintf("%s on %s", symbol, network))
}
