package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stackport-labs/stackport-go/internal/platform/env"
)

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

func WebhookConfigFromEnv() (WebhookConfig, error) {
	timeout, err := env.Duration("TEAMS_WEBHOOK_TIMEOUT", 30*time.Second)
	if err != nil {
		return WebhookConfig{}, err
	}
	return WebhookConfig{
		URL:     env.String("TEAMS_WEBHOOK_URL", ""),
		Timeout: timeout,
	}, nil
}

func (c WebhookConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != ""
}

func (c WebhookConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("TEAMS_WEBHOOK_URL is required")
	}
	if c.Timeout <= 0 {
		return errors.New("TEAMS_WEBHOOK_TIMEOUT must be positive")
	}
	return nil
}

// WebhookNotifier posts MessageCard payloads to a Teams incoming webhook.
type WebhookNotifier struct {
	url  string
	http *http.Client
}

func NewWebhookNotifier(cfg WebhookConfig) (*WebhookNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WebhookNotifier{
		url:  strings.TrimSpace(cfg.URL),
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type messageCard struct {
	Type            string       `json:"@type"`
	Context         string       `json:"@context"`
	ThemeColor      string       `json:"themeColor"`
	Summary         string       `json:"summary"`
	Sections        []section    `json:"sections"`
	PotentialAction []cardAction `json:"potentialAction,omitempty"`
}

type section struct {
	ActivityTitle string `json:"activityTitle"`
	Text          string `json:"text"`
	Facts         []Fact `json:"facts,omitempty"`
}

type cardAction struct {
	Type    string       `json:"@type"`
	Name    string       `json:"name"`
	Targets []cardTarget `json:"targets"`
}

type cardTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	if n == nil {
		return errors.New("webhook notifier not initialized")
	}

	card := messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: "0078D4",
		Summary:    msg.Subject,
		Sections: []section{{
			ActivityTitle: msg.Subject,
			Text:          msg.Body,
			Facts:         msg.Facts,
		}},
	}
	if strings.TrimSpace(msg.LinkURL) != "" {
		card.PotentialAction = []cardAction{{
			Type:    "OpenUri",
			Name:    "View Details",
			Targets: []cardTarget{{OS: "default", URI: msg.LinkURL}},
		}}
	}

	body, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal message card: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
