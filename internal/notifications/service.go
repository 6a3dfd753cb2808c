package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vitae/internal/config"
)

const userAgent = "Vitae-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyDocumentArrived(ctx context.Context, sourcePath string) error
	NotifyDocumentCompleted(ctx context.Context, itemID, artifactRef string) error
	NotifyDocumentFailed(ctx context.Context, itemID, reason string) error
	NotifyReviewAssigned(ctx context.Context, reviewID, reviewer string) error
	NotifyReviewEscalated(ctx context.Context, reviewID string, score float64) error
	NotifyReviewDecided(ctx context.Context, reviewID, decision string) error
	NotifyBreakerOpened(ctx context.Context, operation string) error
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
		reviewEvents: cfg.Notifications.Reviews,
		queueEvents:  cfg.Notifications.Queue,
		errorEvents:  cfg.Notifications.Errors,
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
	reviewEvents bool
	queueEvents  bool
	errorEvents  bool
}

func (n *ntfyService) NotifyDocumentArrived(ctx context.Context, sourcePath string) error {
	if !n.queueEvents {
		return nil
	}
	data := payload{
		title:   "Vitae - Document Queued",
		message: fmt.Sprintf("New document queued: %s", strings.TrimSpace(sourcePath)),
		tags:    []string{"vitae", "queue", "arrived"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDocumentCompleted(ctx context.Context, itemID, artifactRef string) error {
	if !n.queueEvents {
		return nil
	}
	message := fmt.Sprintf("Processing complete: %s", itemID)
	if artifactRef = strings.TrimSpace(artifactRef); artifactRef != "" {
		message = fmt.Sprintf("%s\nArtifact: %s", message, artifactRef)
	}
	data := payload{
		title:   "Vitae - Complete",
		message: message,
		tags:    []string{"vitae", "pipeline", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDocumentFailed(ctx context.Context, itemID, reason string) error {
	if !n.queueEvents {
		return nil
	}
	data := payload{
		title:    "Vitae - Failed",
		message:  fmt.Sprintf("Processing failed: %s\n%s", itemID, strings.TrimSpace(reason)),
		tags:     []string{"vitae", "pipeline", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewAssigned(ctx context.Context, reviewID, reviewer string) error {
	if !n.reviewEvents {
		return nil
	}
	data := payload{
		title:   "Vitae - Review Assigned",
		message: fmt.Sprintf("Review %s assigned to %s", reviewID, reviewer),
		tags:    []string{"vitae", "review", "assigned"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewEscalated(ctx context.Context, reviewID string, score float64) error {
	if !n.reviewEvents {
		return nil
	}
	data := payload{
		title:    "Vitae - Review Escalated",
		message:  fmt.Sprintf("Review %s escalated (score %.2f)\nSupervisor decision required", reviewID, score),
		tags:     []string{"vitae", "review", "escalated"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewDecided(ctx context.Context, reviewID, decision string) error {
	if !n.reviewEvents {
		return nil
	}
	data := payload{
		title:   "Vitae - Review Decided",
		message: fmt.Sprintf("Review %s decided: %s", reviewID, decision),
		tags:    []string{"vitae", "review", "decided"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBreakerOpened(ctx context.Context, operation string) error {
	if !n.errorEvents {
		return nil
	}
	data := payload{
		title:    "Vitae - Circuit Open",
		message:  fmt.Sprintf("Circuit breaker opened for %q; dependency presumed down", operation),
		tags:     []string{"vitae", "breaker", "open"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errorEvents {
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
		title:    "Vitae - Error",
		message:  builder.String(),
		tags:     []string{"vitae", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Vitae - Test",
		message:  "Notification system test",
		tags:     []string{"vitae", "test"},
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

func (noopService) NotifyDocumentArrived(context.Context, string) error           { return nil }
func (noopService) NotifyDocumentCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyDocumentFailed(context.Context, string, string) error    { return nil }
func (noopService) NotifyReviewAssigned(context.Context, string, string) error    { return nil }
func (noopService) NotifyReviewEscalated(context.Context, string, float64) error  { return nil }
func (noopService) NotifyReviewDecided(context.Context, string, string) error     { return nil }
func (noopService) NotifyBreakerOpened(context.Context, string) error             { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
