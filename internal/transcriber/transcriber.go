// Package transcriber turns extracted audio into text, either with a local
// whisper.cpp binary or through the OpenAI transcription API.
package transcriber

import (
	"context"
	"fmt"

	"fknsrs.biz/p/vidscribe/internal/settings"
	"fknsrs.biz/p/vidscribe/internal/toollimit"
)

var (
	ErrUnsupportedEngine = fmt.Errorf("no transcription engine available with that name")
	ErrNoAPIKey          = fmt.Errorf("no OpenAI API key configured")
)

// Request asks for AudioPath to be transcribed. Empty Engine or Model fall
// back to the current settings.
type Request struct {
	AudioPath string
	Engine    string
	Model     string
}

type Result struct {
	Text     string
	Language string
	Engine   string
	Model    string
}

type Options struct {
	Model  string
	APIKey string
}

type Engine interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
}

type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type Service struct {
	Settings SettingsSource
	Engines  map[string]Engine
	Limits   *toollimit.Limits
}

func (s *Service) Transcribe(ctx context.Context, req Request) (*Result, error) {
	current, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("transcriber.Service.Transcribe: could not read settings: %w", err)
	}

	name := req.Engine
	if name == "" {
		name = current.WhisperEngine
	}

	engine, ok := s.Engines[name]
	if !ok {
		return nil, fmt.Errorf("transcriber.Service.Transcribe: %q: %w", name, ErrUnsupportedEngine)
	}

	// the configured model names a local model file, so it only applies to
	// the local engine
	model := req.Model
	if model == "" && name == settings.EngineLocal {
		model = current.WhisperModel
	}

	var res *Result
	if err := s.Limits.Do(ctx, toollimit.Transcribe, func() error {
		r, err := engine.Transcribe(ctx, req.AudioPath, Options{Model: model, APIKey: current.OpenAIAPIKey})
		if err != nil {
			return err
		}
		res = r
		return nil
	}); err != nil {
		return nil, fmt.Errorf("transcriber.Service.Transcribe: %s: %w", name, err)
	}

	return res, nil
}
