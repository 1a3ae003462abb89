// Package settings keeps the runtime-editable transcription settings in
// bbolt. Values that were never set fall back to the configured defaults.
package settings

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	EngineLocal  = "whisper_local"
	EngineOpenAI = "openai_api"
)

var (
	ErrUnknownEngine = fmt.Errorf("unknown transcription engine")
)

func ValidateEngine(s string) error {
	switch s {
	case EngineLocal, EngineOpenAI:
		return nil
	default:
		return fmt.Errorf("settings.ValidateEngine: %q: %w", s, ErrUnknownEngine)
	}
}

type Settings struct {
	WhisperEngine string
	WhisperModel  string
	OpenAIAPIKey  string
}

// Update holds the fields to change. Nil fields are left alone.
type Update struct {
	WhisperEngine *string
	WhisperModel  *string
	OpenAIAPIKey  *string
}

var bucketName = []byte("settings")

const (
	keyWhisperEngine = "whisper_engine"
	keyWhisperModel  = "whisper_model"
	keyOpenAIAPIKey  = "openai_api_key"
)

type Store struct {
	db       *bbolt.DB
	defaults Settings
}

func New(db *bbolt.DB, defaults Settings) (*Store, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		return nil, fmt.Errorf("settings.New: could not create bucket: %w", err)
	}

	return &Store{db: db, defaults: defaults}, nil
}

func (s *Store) Get(ctx context.Context) (Settings, error) {
	out := s.defaults

	if err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)

		for k, v := range map[string]*string{
			keyWhisperEngine: &out.WhisperEngine,
			keyWhisperModel:  &out.WhisperModel,
			keyOpenAIAPIKey:  &out.OpenAIAPIKey,
		} {
			if d := b.Get([]byte(k)); d != nil {
				*v = string(d)
			}
		}

		return nil
	}); err != nil {
		return Settings{}, fmt.Errorf("settings.Store.Get: %w", err)
	}

	return out, nil
}

func (s *Store) Update(ctx context.Context, u Update) (Settings, error) {
	if u.WhisperEngine != nil {
		if err := ValidateEngine(*u.WhisperEngine); err != nil {
			return Settings{}, fmt.Errorf("settings.Store.Update: %w", err)
		}
	}

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)

		for k, v := range map[string]*string{
			keyWhisperEngine: u.WhisperEngine,
			keyWhisperModel:  u.WhisperModel,
			keyOpenAIAPIKey:  u.OpenAIAPIKey,
		} {
			if v == nil {
				continue
			}

			if err := b.Put([]byte(k), []byte(*v)); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		return Settings{}, fmt.Errorf("settings.Store.Update: %w", err)
	}

	return s.Get(ctx)
}
