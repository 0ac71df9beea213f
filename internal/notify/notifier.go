// internal/notify/notifier.go

// Package notify delivers admin notifications through the chat bot API.
// Delivery is fire-and-forget: failures are logged, never returned, and
// never fail the operation that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier sends a text message to every configured admin
type Notifier interface {
	NotifyAdmins(ctx context.Context, text string)
}

// BotNotifier implements Notifier over the chat bot HTTP API
type BotNotifier struct {
	client   *http.Client
	apiBase  string
	token    string
	adminIDs []int64
	logger   *logrus.Logger
}

// NewBotNotifier creates a notifier for the given bot token and admins
func NewBotNotifier(apiBase, token string, adminIDs []int64, timeout time.Duration, logger *logrus.Logger) *BotNotifier {
	return &BotNotifier{
		client:   &http.Client{Timeout: timeout},
		apiBase:  apiBase,
		token:    token,
		adminIDs: adminIDs,
		logger:   logger,
	}
}

// NotifyAdmins sends text to each admin id. Errors are logged per
// recipient and swallowed.
func (n *BotNotifier) NotifyAdmins(ctx context.Context, text string) {
	for _, adminID := range n.adminIDs {
		if err := n.send(ctx, adminID, text); err != nil {
			n.logger.WithError(err).WithField("admin_id", adminID).Warn("failed to notify admin")
		}
	}
}

func (n *BotNotifier) send(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bot API returned status %d", resp.StatusCode)
	}
	return nil
}

// Nop is a Notifier that does nothing. Used when no bot token is
// configured and in tests.
type Nop struct{}

// NotifyAdmins implements Notifier
func (Nop) NotifyAdmins(context.Context, string) {}
