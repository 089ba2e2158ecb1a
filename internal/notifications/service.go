package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipline/internal/config"
)

const userAgent = "Clipline-Go/0.1.0"

// Event names a pipeline milestone that may be worth notifying a human about.
type Event string

const (
	EventFetchStarted           Event = "fetch_started"
	EventFetchCompleted         Event = "fetch_completed"
	EventTranscriptionStarted   Event = "transcription_started"
	EventTranscriptionCompleted Event = "transcription_completed"
	EventAnalysisCompleted      Event = "analysis_completed"
	EventTranslationCompleted   Event = "translation_completed"
	EventExportStarted          Event = "export_started"
	EventExportCompleted        Event = "export_completed"
	EventRunCompleted           Event = "run_completed"
	EventNeedsReview            Event = "needs_review"
	EventError                  Event = "error"
)

// suppressed events fire often enough that paging on them would be noise;
// the pipeline still emits them for structured logs, just not to ntfy.
var suppressed = map[Event]struct{}{
	EventFetchStarted:         {},
	EventTranscriptionStarted: {},
	EventExportStarted:        {},
}

// Payload carries the event-specific fields used to render a message.
// Values are formatted with fmt.Sprint, so any stringable type works.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if _, skip := suppressed[event]; skip {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventFetchCompleted:
		return message{
			title: "Clipline - Fetch Complete",
			body:  fmt.Sprintf("📥 Downloaded: %s", field(payload, "video_title")),
			tags:  []string{"clipline", "fetch", "completed"},
		}, true
	case EventTranscriptionCompleted:
		return message{
			title: "Clipline - Transcribed",
			body:  fmt.Sprintf("📝 Transcription complete: %s (%s)", field(payload, "video_title"), field(payload, "language")),
			tags:  []string{"clipline", "transcribe", "completed"},
		}, true
	case EventAnalysisCompleted:
		return message{
			title: "Clipline - Highlights Ready",
			body:  fmt.Sprintf("✨ Found %s highlights in %s", field(payload, "highlight_count"), field(payload, "video_title")),
			tags:  []string{"clipline", "analyze", "completed"},
		}, true
	case EventTranslationCompleted:
		return message{
			title: "Clipline - Translated",
			body:  fmt.Sprintf("🌐 Translated %s segments to %s", field(payload, "segment_count"), field(payload, "target_language")),
			tags:  []string{"clipline", "translate", "completed"},
		}, true
	case EventExportCompleted:
		return message{
			title: "Clipline - Export Complete",
			body:  fmt.Sprintf("🎬 Exported %s: %s", field(payload, "video_title"), field(payload, "output_path")),
			tags:  []string{"clipline", "export", "completed"},
		}, true
	case EventRunCompleted:
		return message{
			title:    "Clipline - Run Complete",
			body:     fmt.Sprintf("✅ Run %s complete in %s", field(payload, "run_id"), field(payload, "duration")),
			tags:     []string{"clipline", "run", "completed"},
			priority: "high",
		}, true
	case EventNeedsReview:
		return message{
			title:    "Clipline - Needs Review",
			body:     fmt.Sprintf("👀 Run %s needs manual selection: %s", field(payload, "run_id"), field(payload, "reason")),
			tags:     []string{"clipline", "review"},
			priority: "high",
		}, true
	case EventError:
		stage := field(payload, "stage")
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if stage != "" {
			builder.WriteString(" in ")
			builder.WriteString(stage)
		}
		builder.WriteString(": ")
		builder.WriteString(field(payload, "error"))
		return message{
			title:    "Clipline - Error",
			body:     builder.String(),
			tags:     []string{"clipline", "error", "alert"},
			priority: "high",
		}, true
	default:
		return message{}, false
	}
}

func field(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
