package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier posts CRITICAL breaches to a Slack webhook. An empty
// webhook URL disables it.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlackNotifier creates the notifier; returns nil when unconfigured
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendBreach posts one breach summary
func (s *SlackNotifier) SendBreach(ctx context.Context, breaches []string) error {
	var sb strings.Builder
	sb.WriteString("🚨 *INTEGRITY SENTINEL: CRITICAL BREACH*\n")
	sb.WriteString("Autopublish disabled.\n\n")
	for _, breach := range breaches {
		sb.WriteString(fmt.Sprintf("• %s\n", breach))
	}

	payload, err := json.Marshal(map[string]interface{}{"text": sb.String()})
	if err != nil {
		return fmt.Errorf("marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send Slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}
