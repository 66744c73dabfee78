// Package mattermost provides webhook client for announcing awards to Mattermost.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/aimd54/storefront-badges/internal/config"
	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/pkg/logger"
)

const requestTimeout = 10 * time.Second

// Client handles Mattermost webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Mattermost client.
func NewClient(cfg *config.MattermostConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

// Message represents a Mattermost message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage sends a message to Mattermost.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Mattermost is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mattermost returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to Mattermost")

	return nil
}

// NotifyAwarded announces a freshly activated award.
func (c *Client) NotifyAwarded(ctx context.Context, award *models.Award) error {
	return c.SendMessage(ctx, AwardAnnouncement(award))
}

// AwardAnnouncement renders the message posted when an award activates.
func AwardAnnouncement(award *models.Award) *Message {
	title := fmt.Sprintf("%s #%d earned this week's badge", subjectLabel(award.SubjectType), award.SubjectID)

	criteria := award.CriteriaMap()
	names := make([]string, 0, len(criteria))
	for name := range criteria {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		state := criteria[name]
		fields = append(fields, Field{
			Short: true,
			Title: name,
			Value: fmt.Sprintf("%g %s %g", state.Current, state.Comparator, state.Required),
		})
	}

	return &Message{
		Username: "Badge Bot",
		Text:     "### 🏅 " + title,
		Attachments: []Attachment{{
			Fallback: title,
			Color:    "#f2c744",
			Title:    fmt.Sprintf("Week of %s", award.WindowStart.Format("2006-01-02")),
			Fields:   fields,
			Footer:   fmt.Sprintf("Valid until %s", award.ExpiresAt.Format(time.RFC1123)),
		}},
	}
}

func subjectLabel(subjectType string) string {
	switch subjectType {
	case models.SubjectTypeStore:
		return "Store"
	case models.SubjectTypeCustomer:
		return "Customer"
	default:
		return subjectType
	}
}
