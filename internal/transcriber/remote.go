package transcriber

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"fknsrs.biz/p/vidscribe/internal/settings"
)

// Remote sends audio to the OpenAI transcription endpoint. The API reports
// no language, so Result.Language is left empty.
type Remote struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (r *Remote) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("transcriber.Remote.Transcribe: %w", ErrNoAPIKey)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if r.BaseURL != "" {
		cfg.BaseURL = r.BaseURL
	}
	if r.HTTPClient != nil {
		cfg.HTTPClient = r.HTTPClient
	}

	model := opts.Model
	if model == "" {
		model = openai.Whisper1
	}

	res, err := openai.NewClientWithConfig(cfg).CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: audioPath,
	})
	if err != nil {
		return nil, fmt.Errorf("transcriber.Remote.Transcribe: %w", err)
	}

	return &Result{
		Text:   res.Text,
		Engine: settings.EngineOpenAI,
		Model:  model,
	}, nil
}
