package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"clipline/internal/config"
	"clipline/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventFetchCompleted, notifications.Payload{"video_title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "fetch completed",
			event: notifications.EventFetchCompleted,
			payload: notifications.Payload{
				"video_title": "Interstellar Explainer",
			},
			expectTitle:   "Clipline - Fetch Complete",
			expectMessage: "📥 Downloaded: Interstellar Explainer",
			expectTags:    "clipline,fetch,completed",
		},
		{
			name:  "transcription completed",
			event: notifications.EventTranscriptionCompleted,
			payload: notifications.Payload{
				"video_title": "Blade Runner Retrospective",
				"language":    "en",
			},
			expectTitle:   "Clipline - Transcribed",
			expectMessage: "📝 Transcription complete: Blade Runner Retrospective (en)",
			expectTags:    "clipline,transcribe,completed",
		},
		{
			name:  "analysis completed",
			event: notifications.EventAnalysisCompleted,
			payload: notifications.Payload{
				"video_title":     "Jurassic Park Deep Dive",
				"highlight_count": 6,
			},
			expectTitle:   "Clipline - Highlights Ready",
			expectMessage: "✨ Found 6 highlights in Jurassic Park Deep Dive",
			expectTags:    "clipline,analyze,completed",
		},
		{
			name:  "export completed",
			event: notifications.EventExportCompleted,
			payload: notifications.Payload{
				"video_title": "Arrival Breakdown",
				"output_path": "/exports/arrival-breakdown.mp4",
			},
			expectTitle:   "Clipline - Export Complete",
			expectMessage: "🎬 Exported Arrival Breakdown: /exports/arrival-breakdown.mp4",
			expectTags:    "clipline,export,completed",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"stage": "translate",
				"error": "provider timed out",
			},
			expectTitle:    "Clipline - Error",
			expectMessage:  "❌ Error in translate: provider timed out",
			expectTags:     "clipline,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventFetchStarted,
		notifications.EventTranscriptionStarted,
		notifications.EventExportStarted,
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}
