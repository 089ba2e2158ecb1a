package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldDecisionType,
	"video_title",
	"channel_name",
	"processing_status",
	FieldProgressStage,
	FieldProgressPercent,
	FieldProgressMessage,
	FieldProgressETA,
	"command",
	"error_message",
	FieldErrorCode,
	FieldErrorHint,
	FieldErrorDetailPath,
	"status",
	"video_source",
	"video_duration",
	"video_resolution",
	"video_fps",
	"video_codec",
	"audio_sample_rate",
	"audio_channels",
	"transcription_language",
	"transcription_provider",
	"analysis_provider",
	"analysis_fallback_used",
	"translation_provider",
	"translation_target_language",
	"translation_batch_size",
	"translation_retry_count",
	"export_format",
	"export_status",
	"llm_provider",
	"llm_model",
	"llm_latency_ms",
	"provider_reason",
	"decision_result",
	"decision_selected",
	"decision_candidates",
	"decision_rejects",
	// Stage summary fields
	"stage_duration",
	"fetch_duration",
	"transcribe_duration",
	"analyze_duration",
	"translate_duration",
	"export_duration",
	"bytes_downloaded",
	"input_bytes",
	"output_bytes",
	"compression_ratio_percent",
	"final_file_size_bytes",
	"files_exported",
	"highlights_found",
	"chapter_count",
	"segments_translated",
	"cache_used",
	"cache_decision",
	"identified",
	"media_type",
	"media_title",
	"reason",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit. includeDebug controls whether debug-only keys are allowed.
func selectInfoFields(attrs []kv, limit int, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}
	used := make([]bool, len(attrs))
	formatted := make([]string, len(attrs))
	formattedSet := make([]bool, len(attrs))
	ensureValue := func(idx int) string {
		if !formattedSet[idx] {
			formatted[idx] = formatValueForKeyWithAttrs(attrs[idx].key, attrs[idx].value, attrs)
			formattedSet[idx] = true
		}
		return formatted[idx]
	}
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	for _, key := range infoHighlightKeys {
		if limit > 0 && len(result) >= limit {
			break
		}
		for idx, attr := range attrs {
			if used[idx] || attr.key != key {
				continue
			}
			used[idx] = true
			if skipInfoKey(attr.key) {
				break
			}
			if !includeDebug && isDebugOnlyKey(attr.key) {
				hidden++
				break
			}
			val := ensureValue(idx)
			if !includeDebug && shouldHideInfoValue(attr.key, val) {
				hidden++
				break
			}
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
			break
		}
	}

	for idx, attr := range attrs {
		if used[idx] {
			continue
		}
		used[idx] = true
		if skipInfoKey(attr.key) {
			continue
		}
		if !includeDebug && isDebugOnlyKey(attr.key) {
			hidden++
			continue
		}
		val := ensureValue(idx)
		if !includeDebug && shouldHideInfoValue(attr.key, val) {
			hidden++
			continue
		}
		if limit <= 0 || len(result) < limit {
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
		} else if limit > 0 {
			hidden++
		}
	}

	return result, hidden
}

// formatValueForKey applies smart formatting based on the key name.
func formatValueForKeyWithAttrs(key string, v slog.Value, attrs []kv) string {
	v = v.Resolve()

	// Handle byte sizes
	if isByteSizeKey(key) && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64) {
		var bytes int64
		if v.Kind() == slog.KindInt64 {
			bytes = v.Int64()
		} else {
			bytes = int64(v.Uint64())
		}
		return formatBytes(bytes)
	}

	// Handle durations
	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}

	// Handle percentages
	if isPercentKey(key) && v.Kind() == slog.KindFloat64 {
		return formatPercent(v.Float64())
	}

	// Handle booleans with friendlier display
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" || key == "error_message" {
		detailPath := attrValue(attrs, FieldErrorDetailPath)
		value = truncateErrorValue(value, detailPath)
	}
	return value
}

// isByteSizeKey returns true if the key represents a byte size.
func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") ||
		strings.HasSuffix(key, "_size") ||
		key == "size" ||
		key == "input_bytes" ||
		key == "output_bytes"
}

// isDurationKey returns true if the key represents a duration.
func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		strings.HasSuffix(key, "_latency") ||
		key == "elapsed" ||
		key == "duration" ||
		key == "backoff"
}

// isPercentKey returns true if the key represents a percentage.
func isPercentKey(key string) bool {
	return strings.HasSuffix(key, "_percent") ||
		strings.HasSuffix(key, "_ratio_percent") ||
		key == FieldProgressPercent
}

func truncateErrorValue(value, detailPath string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	if strings.TrimSpace(detailPath) != "" {
		if !strings.Contains(value, "error_detail_path") && !strings.Contains(value, "detail_path") {
			value += " (see error_detail_path)"
		}
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldRunID, FieldStage, FieldLane, "component":
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case FieldCorrelationID,
		"fingerprint",
		"source_path",
		"destination_dir",
		"video_id",
		"channel_id",
		"segments",
		"segment_count",
		"token_count",
		"score",
		"score_reasons",
		"size_mb",
		"duration_seconds",
		"provider_latency_ms":
		return true
	}
	if strings.Contains(key, "correlation") {
		return true
	}
	if strings.HasSuffix(key, "_id") && key != FieldRunID {
		return true
	}
	if strings.HasPrefix(key, "ffprobe.") {
		return true
	}
	if strings.Contains(key, "_path") || strings.Contains(key, "_dir") {
		return true
	}
	if strings.Contains(key, "fingerprint") || strings.Contains(key, "tmdb") {
		return true
	}
	return false
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error_message", "error", "command", "preset_reason":
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldDecisionType:
		return "Decision"
	case FieldErrorCode:
		return "Error Code"
	case FieldErrorHint:
		return "Hint"
	case FieldErrorDetailPath:
		return "Error Detail"
	case FieldRunID:
		return "Run"
	case FieldStage:
		return "Stage"
	case "video_title":
		return "Video"
	case "channel_name":
		return "Channel"
	case "processing_status":
		return "Status"
	case "progress_stage":
		return "Progress Stage"
	case "progress_message":
		return "Progress"
	case "video_source":
		return "Source"
	case "video_resolution":
		return "Resolution"
	// Stage summary fields - concise labels
	case "stage_duration":
		return "Duration"
	case "fetch_duration":
		return "Fetch Time"
	case "transcribe_duration":
		return "Transcribe Time"
	case "analyze_duration":
		return "Analyze Time"
	case "translate_duration":
		return "Translate Time"
	case "export_duration":
		return "Export Time"
	case "bytes_downloaded":
		return "Downloaded"
	case "input_bytes":
		return "Input"
	case "output_bytes":
		return "Output"
	case "compression_ratio_percent":
		return "Compression"
	case "final_file_size_bytes":
		return "File Size"
	case "files_exported":
		return "Files"
	case "highlights_found":
		return "Highlights"
	case "chapter_count":
		return "Chapters"
	case "segments_translated":
		return "Segments"
	case "cache_used":
		return "Cache Hit"
	case "cache_decision":
		return "Cache"
	case "identified":
		return "Identified"
	case "media_type":
		return "Type"
	case "media_title":
		return "Title"
	case "llm_provider":
		return "LLM Provider"
	case "llm_model":
		return "Model"
	case "llm_latency_ms":
		return "Latency"
	case "transcription_provider":
		return "Transcriber"
	case "transcription_language":
		return "Language"
	case "translation_provider":
		return "Translator"
	case "translation_target_language":
		return "Target Language"
	case "needs_review":
		return "Needs Review"
	case "decision_result":
		return "Decision"
	case "decision_selected":
		return "Selected"
	case "decision_candidates":
		return "Candidates"
	case "decision_rejects":
		return "Rejected"
	case "reason":
		return "Reason"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	}
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	switch len(value) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(value)
	default:
		lower := strings.ToLower(value)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}

func infoSummaryKey(component, itemID, _ string, attrs []kv) string {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		if video := attrValue(attrs, "video_title"); video != "" {
			itemID = "video:" + video
		} else if channel := attrValue(attrs, "channel_name"); channel != "" {
			itemID = "channel:" + channel
		} else if component != "" {
			itemID = component
		}
	}
	if itemID == "" {
		return ""
	}
	return itemID
}

func attrValue(attrs []kv, key string) string {
	for _, kv := range attrs {
		if kv.key == key {
			return attrString(kv.value)
		}
	}
	return ""
}
