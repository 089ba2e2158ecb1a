package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

// YtDlpFetcher shells out to yt-dlp, grounded on the original project's
// video_fetcher module (info extraction followed by a download pass) and
// on this codebase's ffmpeg/whisper adapters' os/exec.CommandContext
// subprocess-wrapper idiom.
type YtDlpFetcher struct {
	BinPath string // defaults to "yt-dlp" on PATH
}

// NewYtDlpFetcher constructs a Fetcher. An empty binPath resolves via PATH.
func NewYtDlpFetcher(binPath string) *YtDlpFetcher {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &YtDlpFetcher{BinPath: binPath}
}

type ytDlpInfo struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Channel      string   `json:"channel"`
	ChannelID    string   `json:"channel_id"`
	UploadDate   string   `json:"upload_date"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	ViewCount    int64    `json:"view_count"`
	LikeCount    int64    `json:"like_count"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	FPS          int      `json:"fps"`
	VCodec       string   `json:"vcodec"`
	FileSize     int64    `json:"filesize"`
	Duration     float64  `json:"duration"`
	Filename     string   `json:"_filename"`
}

// Fetch downloads sourceURL into outputDir and reports its metadata.
func (f *YtDlpFetcher) Fetch(ctx context.Context, sourceURL, outputDir, quality string) (model.VideoArtifact, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return model.VideoArtifact{}, pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageFetch, "fetch.validate",
			"source URL is empty", nil)
	}

	format := formatSelector(quality)
	outputTemplate := filepath.Join(outputDir, "%(id)s.%(ext)s")

	cmd := exec.CommandContext(ctx, f.BinPath,
		"--no-playlist",
		"--format", format,
		"--output", outputTemplate,
		"--print-json",
		"--no-simulate",
		sourceURL,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return model.VideoArtifact{}, classifyFetchError(err, stderr.String())
	}

	line := lastNonEmptyLine(stdout.String())
	var info ytDlpInfo
	if err := json.Unmarshal([]byte(line), &info); err != nil {
		return model.VideoArtifact{}, pipelineerr.Wrap(pipelineerr.ErrParseFailure, model.StageFetch, "fetch.parse",
			"could not parse yt-dlp output", err)
	}

	duration := time.Duration(info.Duration * float64(time.Second))
	metadata := model.VideoMetadata{
		VideoID:     info.ID,
		Title:       info.Title,
		ChannelName: info.Channel,
		ChannelID:   info.ChannelID,
		UploadDate:  parseYtDlpDate(info.UploadDate),
		Description: info.Description,
		Tags:        info.Tags,
		ViewCount:   info.ViewCount,
		LikeCount:   info.LikeCount,
		Width:       info.Width,
		Height:      info.Height,
		FPS:         info.FPS,
		Codec:       info.VCodec,
		FileSize:    info.FileSize,
	}

	return model.VideoArtifact{
		Path:     info.Filename,
		Metadata: metadata,
		IsShort:  info.Height > info.Width && info.Height > 0,
		Duration: duration,
	}, nil
}

// formatSelector maps a coarse quality hint to a yt-dlp format expression.
func formatSelector(quality string) string {
	switch strings.ToLower(quality) {
	case "best", "":
		return "bestvideo*+bestaudio/best"
	case "1080p":
		return "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	case "720p":
		return "bestvideo[height<=720]+bestaudio/best[height<=720]"
	default:
		return quality
	}
}

func classifyFetchError(err error, stderrOutput string) error {
	lower := strings.ToLower(stderrOutput)
	switch {
	case strings.Contains(lower, "video unavailable") || strings.Contains(lower, "404"):
		return pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageFetch, "fetch.download", "not_found: "+firstLine(stderrOutput), err)
	case strings.Contains(lower, "geo") && strings.Contains(lower, "block"):
		return pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageFetch, "fetch.download", "geo_blocked: "+firstLine(stderrOutput), err)
	case strings.Contains(lower, "sign in to confirm your age") || strings.Contains(lower, "age"):
		return pipelineerr.Wrap(pipelineerr.ErrInvalidInput, model.StageFetch, "fetch.download", "age_restricted: "+firstLine(stderrOutput), err)
	case strings.Contains(lower, "no space left"):
		return pipelineerr.Wrap(pipelineerr.ErrResourceExhausted, model.StageFetch, "fetch.download", "disk_space: "+firstLine(stderrOutput), err)
	case strings.Contains(lower, "unable to download") || strings.Contains(lower, "network") || strings.Contains(lower, "timed out"):
		return pipelineerr.Wrap(pipelineerr.ErrTransientNetwork, model.StageFetch, "fetch.download", "download_failed: "+firstLine(stderrOutput), err)
	default:
		return pipelineerr.Wrap(pipelineerr.ErrTransientNetwork, model.StageFetch, "fetch.download", "download_failed: "+firstLine(stderrOutput), err)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func parseYtDlpDate(v string) time.Time {
	if len(v) != 8 {
		return time.Time{}
	}
	year, err1 := strconv.Atoi(v[0:4])
	month, err2 := strconv.Atoi(v[4:6])
	day, err3 := strconv.Atoi(v[6:8])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
