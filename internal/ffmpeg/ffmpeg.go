package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"fknsrs.biz/p/vidscribe/internal/config"
	"fknsrs.biz/p/vidscribe/internal/toollimit"
)

// ExtractAudio writes the audio track of videoFile to audioFile as 16kHz
// mono 16-bit PCM, which is what whisper wants.
func ExtractAudio(ctx context.Context, binary, videoFile, audioFile string) (string, error) {
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(
		ctx, binary,
		"-y",
		"-loglevel", "warning",
		"-i", videoFile,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioFile,
	)

	var buf bytes.Buffer

	cmd.Stdin = nil
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("ffmpeg.ExtractAudio: %w: %s", err, strings.TrimSpace(buf.String()))
	}

	return buf.String(), nil
}

type Extractor struct {
	Config config.Config
	Limits *toollimit.Limits
}

// ExtractAudio takes the stored path of a video and returns the stored path
// of its audio, videos/{id}/audio.wav.
func (e *Extractor) ExtractAudio(ctx context.Context, videoID int, videoPath string) (string, error) {
	rel := e.Config.RelativeDataFile("videos", strconv.Itoa(videoID), "audio.wav")
	out := e.Config.ResolveDataFile(rel)

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", fmt.Errorf("ffmpeg.Extractor.ExtractAudio: %w", err)
	}

	if err := e.Limits.Do(ctx, toollimit.Transcode, func() error {
		_, err := ExtractAudio(ctx, e.Config.FFmpegBinary, e.Config.ResolveDataFile(videoPath), out)
		return err
	}); err != nil {
		return "", fmt.Errorf("ffmpeg.Extractor.ExtractAudio: %w", err)
	}

	return rel, nil
}
