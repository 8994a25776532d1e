package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"petlabel/internal/config"
)

const userAgent = "Petlabel/0.1.0"

// Service defines the push-notification surface exposed to the labeling
// services. Persistent in-app notifications are written to the store by the
// services themselves; this interface only covers best-effort push delivery.
type Service interface {
	NotifyEditRequestFiled(ctx context.Context, username string, itemID int64) error
	NotifyEditRequestDecided(ctx context.Context, username string, itemID int64, approved bool) error
	NotifyReworkRequested(ctx context.Context, username string, itemID int64, categoryName string) error
	NotifyReviewApproved(ctx context.Context, username string, itemID int64) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		review:       cfg.Notifications.Review,
		editRequests: cfg.Notifications.EditRequests,
		rework:       cfg.Notifications.Rework,
		errors:       cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	review       bool
	editRequests bool
	rework       bool
	errors       bool
}

func (n *ntfyService) NotifyEditRequestFiled(ctx context.Context, username string, itemID int64) error {
	if !n.editRequests {
		return nil
	}
	data := payload{
		title:   "Petlabel - Edit Request",
		message: fmt.Sprintf("%s requested an edit on item %d", strings.TrimSpace(username), itemID),
		tags:    []string{"petlabel", "edit-request", "filed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEditRequestDecided(ctx context.Context, username string, itemID int64, approved bool) error {
	if !n.editRequests {
		return nil
	}
	verdict := "denied"
	headline := "Petlabel - Edit Request Denied"
	if approved {
		verdict = "approved"
		headline = "Petlabel - Edit Request Approved"
	}
	data := payload{
		title:   headline,
		message: fmt.Sprintf("Edit request by %s on item %d was %s", strings.TrimSpace(username), itemID, verdict),
		tags:    []string{"petlabel", "edit-request", verdict},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReworkRequested(ctx context.Context, username string, itemID int64, categoryName string) error {
	if !n.rework {
		return nil
	}
	message := fmt.Sprintf("Rework requested for %s on item %d", strings.TrimSpace(username), itemID)
	if categoryName = strings.TrimSpace(categoryName); categoryName != "" {
		message = fmt.Sprintf("%s (%s)", message, categoryName)
	}
	data := payload{
		title:    "Petlabel - Rework Requested",
		message:  message,
		tags:     []string{"petlabel", "rework", "requested"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewApproved(ctx context.Context, username string, itemID int64) error {
	if !n.review {
		return nil
	}
	data := payload{
		title:   "Petlabel - Approved",
		message: fmt.Sprintf("Annotations by %s on item %d approved", strings.TrimSpace(username), itemID),
		tags:    []string{"petlabel", "review", "approved"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Petlabel - Error",
		message:  builder.String(),
		tags:     []string{"petlabel", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Petlabel - Test",
		message:  "Notification system test",
		tags:     []string{"petlabel", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyEditRequestFiled(context.Context, string, int64) error { return nil }
func (noopService) NotifyEditRequestDecided(context.Context, string, int64, bool) error {
	return nil
}
func (noopService) NotifyReworkRequested(context.Context, string, int64, string) error { return nil }
func (noopService) NotifyReviewApproved(context.Context, string, int64) error          { return nil }
func (noopService) NotifyError(context.Context, error, string) error                   { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
