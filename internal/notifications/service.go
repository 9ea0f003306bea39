package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"memsweep/internal/config"
	"memsweep/internal/memory"
	"memsweep/internal/scheduler"
)

const userAgent = "memsweep/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyCleanCompleted(ctx context.Context, outcome scheduler.Outcome) error
	NotifyForeground(ctx context.Context) error
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

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		clean:      cfg.Notifications.Clean,
		foreground: cfg.Notifications.Foreground,
		zeroFreed:  cfg.Notifications.NotifyZeroFreed,
	}
}

// Summary is the one-line result shown for a pass.
func Summary(freedBytes int64) string {
	if freedBytes <= 0 {
		return "Memory already optimized"
	}
	return "Freed " + memory.FormatMegabytes(freedBytes)
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	clean      bool
	foreground bool
	zeroFreed  bool
}

func (n *ntfyService) NotifyCleanCompleted(ctx context.Context, outcome scheduler.Outcome) error {
	if !n.clean {
		return nil
	}
	if outcome.FreedBytes <= 0 && !n.zeroFreed {
		return nil
	}
	message := Summary(outcome.FreedBytes)
	if count := len(outcome.Failures); count > 0 {
		message = fmt.Sprintf("%s\n%d of %d actions failed", message, count, len(outcome.Actions))
	}
	data := payload{
		title:   "memsweep - Clean Complete",
		message: message,
		tags:    []string{"memsweep", "clean", string(outcome.Trigger)},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyForeground(ctx context.Context) error {
	if !n.foreground {
		return nil
	}
	data := payload{
		title:   "memsweep - Already Running",
		message: "Another launch was redirected to the running instance",
		tags:    []string{"memsweep", "instance"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "memsweep - Test",
		message:  "Notification system test",
		tags:     []string{"memsweep", "test"},
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

func (noopService) NotifyCleanCompleted(context.Context, scheduler.Outcome) error { return nil }
func (noopService) NotifyForeground(context.Context) error                        { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
