package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3/client"

	"folio/internal/config"
)

const userAgent = "folio/0.1"

// BatchSummary describes a finished batch.
type BatchSummary struct {
	BatchID string
	JobType string
	User    string
	State   string
	Chains  int
	Failed  int
}

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyBatchFinished(ctx context.Context, summary BatchSummary) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cc := client.New()
	cc.SetTimeout(timeout)
	return &ntfyService{
		endpoint: topic,
		client:   cc,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *client.Client
}

func (n *ntfyService) NotifyBatchFinished(ctx context.Context, summary BatchSummary) error {
	jobType := strings.TrimSpace(summary.JobType)
	if jobType == "" {
		jobType = "batch"
	}
	data := payload{
		title:   "Folio - Batch Complete",
		message: fmt.Sprintf("%s %s finished: %d chains succeeded", jobType, summary.BatchID, summary.Chains),
		tags:    []string{"folio", "batch", "completed"},
	}
	if summary.Failed > 0 {
		data.title = "Folio - Batch Failed"
		data.message = fmt.Sprintf("%s %s finished: %d of %d chains failed", jobType, summary.BatchID, summary.Failed, summary.Chains)
		data.tags = []string{"folio", "batch", "failed"}
		data.priority = "high"
	}
	if user := strings.TrimSpace(summary.User); user != "" {
		data.message += "\nSubmitted by " + user
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
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
		title:    "Folio - Error",
		message:  builder.String(),
		tags:     []string{"folio", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Folio - Test",
		message:  "Notification system test",
		tags:     []string{"folio", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	headers := map[string]string{
		"User-Agent":   userAgent,
		"Content-Type": "text/plain; charset=utf-8",
	}
	if data.title != "" {
		headers["Title"] = data.title
	}
	if len(data.tags) > 0 {
		headers["Tags"] = strings.Join(data.tags, ",")
	}
	if data.priority != "" && data.priority != "default" {
		headers["Priority"] = data.priority
	}

	req := n.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetRawBody([]byte(data.message))
	resp, err := req.Post(n.endpoint)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Close()

	if status := resp.StatusCode(); status >= 300 {
		body := resp.Body()
		if len(body) > 2048 {
			body = body[:2048]
		}
		return fmt.Errorf("ntfy returned %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchFinished(context.Context, BatchSummary) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
