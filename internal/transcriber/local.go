package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"fknsrs.biz/p/vidscribe/internal/settings"
)

const DefaultLocalModel = "base"

// Local runs the whisper.cpp command line tool.
type Local struct {
	Binary string
	Pool   *ModelPool
}

func (l *Local) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	name := opts.Model
	if name == "" {
		name = DefaultLocalModel
	}

	model, release, err := l.Pool.Acquire(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("transcriber.Local.Transcribe: %w", err)
	}
	defer release()

	dir, err := os.MkdirTemp("", "vidscribe-whisper-")
	if err != nil {
		return nil, fmt.Errorf("transcriber.Local.Transcribe: %w", err)
	}
	defer os.RemoveAll(dir)

	outBase := filepath.Join(dir, "out")

	binary := l.Binary
	if binary == "" {
		binary = "whisper-cli"
	}

	cmd := exec.CommandContext(
		ctx, binary,
		"-m", model.Path,
		"-f", audioPath,
		"-l", "auto",
		"-np",
		"-oj",
		"-of", outBase,
	)

	var buf bytes.Buffer

	cmd.Stdin = nil
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("transcriber.Local.Transcribe: %w: %s", err, strings.TrimSpace(buf.String()))
	}

	d, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("transcriber.Local.Transcribe: could not read output: %w", err)
	}

	text, language, err := parseWhisperJSON(d)
	if err != nil {
		return nil, fmt.Errorf("transcriber.Local.Transcribe: %w", err)
	}

	return &Result{
		Text:     text,
		Language: language,
		Engine:   settings.EngineLocal,
		Model:    model.Name,
	}, nil
}

func parseWhisperJSON(d []byte) (string, string, error) {
	c, err := gabs.ParseJSON(d)
	if err != nil {
		return "", "", fmt.Errorf("parseWhisperJSON: %w", err)
	}

	language, _ := c.Path("result.language").Data().(string)

	var b strings.Builder
	for _, segment := range c.Path("transcription").Children() {
		if s, ok := segment.Path("text").Data().(string); ok {
			b.WriteString(s)
		}
	}

	return strings.TrimSpace(b.String()), language, nil
}
