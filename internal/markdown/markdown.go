// Package markdown renders transcripts as markdown documents.
package markdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fknsrs.biz/p/vidscribe/internal/config"
)

type Document struct {
	Title           string
	URL             string
	Channel         string
	DurationSeconds *int
	TranscribedAt   time.Time
	Engine          string
	Model           string
	Text            string
}

const unknown = "N/A"

// FormatDuration gives "1h 2m 3s" for durations of an hour or more, "2m 3s"
// otherwise, and "N/A" when there's no duration to show.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return unknown
	}

	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}

	return fmt.Sprintf("%dm %ds", m, s)
}

func Render(d Document) string {
	var b strings.Builder

	title := d.Title
	if title == "" {
		title = "Untitled"
	}

	b.WriteString("# " + title + "\n\n")
	channel := d.Channel
	if channel == "" {
		channel = "Unknown"
	}

	duration := unknown
	if d.DurationSeconds != nil {
		duration = FormatDuration(*d.DurationSeconds)
	}

	model := d.Model
	if model == "" {
		model = unknown
	}

	b.WriteString("- **Source:** " + d.URL + "\n")
	b.WriteString("- **Channel:** " + channel + "\n")
	b.WriteString("- **Duration:** " + duration + "\n")
	b.WriteString("- **Transcribed:** " + d.TranscribedAt.Format("2006-01-02 15:04") + " via " + d.Engine + " (" + model + ")\n")
	b.WriteString("\n---\n\n")
	b.WriteString("## Transcript\n\n")
	b.WriteString(strings.TrimSpace(d.Text))
	b.WriteString("\n")

	return b.String()
}

type Writer struct {
	Config config.Config
}

// Write renders d into videos/{videoID}/transcription.md, replacing any
// earlier version, and returns the stored form of its path.
func (w *Writer) Write(ctx context.Context, videoID int, d Document) (string, error) {
	id := strconv.Itoa(videoID)

	rel := w.Config.RelativeDataFile("videos", id, "transcription.md")
	p := w.Config.ResolveDataFile(rel)

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("markdown.Writer.Write: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(Render(d)), 0644); err != nil {
		return "", fmt.Errorf("markdown.Writer.Write: %w", err)
	}

	if err := os.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("markdown.Writer.Write: %w", err)
	}

	return rel, nil
}
