package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type LevelList []logrus.Level

func (a LevelList) MarshalText() ([]byte, error) {
	if len(a) == 0 {
		return []byte("-"), nil
	}

	s := make([]string, len(a))
	for i, e := range a {
		s[i] = e.String()
	}

	return []byte(strings.Join(s, ",")), nil
}

func (a *LevelList) UnmarshalText(d []byte) error {
	if string(d) == "" || string(d) == "-" {
		*a = LevelList{}
		return nil
	}

	var aa LevelList

	for _, e := range strings.Split(string(d), ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}

		l, err := logrus.ParseLevel(e)
		if err != nil {
			return fmt.Errorf("config.LevelList.UnmarshalText: could not parse value as logrus level: %w", err)
		}

		aa = append(aa, l)
	}

	*a = aa

	return nil
}

type LogQueries struct {
	Enabled    bool
	SlowerThan time.Duration
}

func (l LogQueries) String() string {
	if !l.Enabled {
		return "none"
	}

	if l.SlowerThan != 0 {
		return ">" + l.SlowerThan.String()
	}

	return "all"
}

func (l LogQueries) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LogQueries) UnmarshalText(d []byte) error {
	s := strings.TrimSpace(string(d))

	switch {
	case s == "all":
		*l = LogQueries{Enabled: true}
		return nil
	case s == "" || s == "none":
		*l = LogQueries{}
		return nil
	case strings.HasPrefix(s, ">") && len(s) > 1:
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return fmt.Errorf("config.LogQueries.UnmarshalText: could not parse value as duration: %w", err)
		}
		*l = LogQueries{Enabled: true, SlowerThan: d}
		return nil
	default:
		return fmt.Errorf("config.LogQueries.UnmarshalText: unrecognised input %q; valid options are none, all, or >x where x is a duration", s)
	}
}

func (l *LogQueries) IsZero() bool {
	return !l.Enabled && l.SlowerThan == 0
}

// Duration is a time.Duration that can be read from flags, environment
// variables and config files in the "1h30m" form.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))

	if s == "" || s == "0" {
		*d = 0
		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config.Duration.UnmarshalText: %w", err)
	}

	*d = Duration(v)

	return nil
}

type Config struct {
	Config               string       `name:"config" toml:"config" yaml:"config" help:"Config file location."`
	LogLevel             logrus.Level `name:"log_level" toml:"log_level" yaml:"log_level" help:"Global log level."`
	LogDebugLevels       LevelList    `name:"log_debug_levels" toml:"log_debug_levels" yaml:"log_debug_levels" help:"Which log levels to include stack data on."`
	LogQueries           LogQueries   `name:"log_queries" toml:"log_queries" yaml:"log_queries" help:"Log SQL queries."`
	LogSORM              bool         `name:"log_sorm" toml:"log_sorm" yaml:"log_sorm" help:"Log SORM queries."`
	ApplicationAddr      string       `name:"application_addr" toml:"application_addr" yaml:"application_addr" help:"Address to listen on for the API server."`
	ApplicationDatabase  string       `name:"application_database" toml:"application_database" yaml:"application_database" help:"Database location for application."`
	ApplicationStatePath string       `name:"application_state_path" toml:"application_state_path" yaml:"application_state_path" help:"Location for settings and HTTP client cache."`
	ApplicationDataPath  string       `name:"application_data_path" toml:"application_data_path" yaml:"application_data_path" help:"Location for downloaded media, audio, transcripts and cookie files."`
	ApplicationMinify    bool         `name:"application_minify" toml:"application_minify" yaml:"application_minify" help:"Minify JSON output."`
	BackgroundWorkers    int          `name:"background_workers" toml:"background_workers" yaml:"background_workers" help:"How many pipelines may run at once."`
	JobReservation       Duration     `name:"job_reservation" toml:"job_reservation" yaml:"job_reservation" help:"How long a background worker holds a job before another worker may take it."`
	DownloadTimeout      Duration     `name:"download_timeout" toml:"download_timeout" yaml:"download_timeout" help:"Upper bound on a single download."`
	ExtractTimeout       Duration     `name:"extract_timeout" toml:"extract_timeout" yaml:"extract_timeout" help:"Upper bound on a single audio extraction."`
	TranscribeTimeout    Duration     `name:"transcribe_timeout" toml:"transcribe_timeout" yaml:"transcribe_timeout" help:"Upper bound on a single transcription."`
	HTTPCacheMaxAge      Duration     `name:"http_cache_max_age" toml:"http_cache_max_age" yaml:"http_cache_max_age" help:"Longest time a fetched thumbnail or page is served from the cache."`
	MaxDownloads         int          `name:"max_downloads" toml:"max_downloads" yaml:"max_downloads" help:"Concurrent yt-dlp processes."`
	MaxTranscodes        int          `name:"max_transcodes" toml:"max_transcodes" yaml:"max_transcodes" help:"Concurrent ffmpeg processes."`
	MaxTranscriptions    int          `name:"max_transcriptions" toml:"max_transcriptions" yaml:"max_transcriptions" help:"Concurrent transcriptions."`
	WhisperEngine        string       `name:"whisper_engine" toml:"whisper_engine" yaml:"whisper_engine" help:"Default transcription engine (whisper_local or openai_api)."`
	WhisperModel         string       `name:"whisper_model" toml:"whisper_model" yaml:"whisper_model" help:"Default transcription model."`
	WhisperBinary        string       `name:"whisper_binary" toml:"whisper_binary" yaml:"whisper_binary" help:"whisper.cpp command line program."`
	WhisperModelsPath    string       `name:"whisper_models_path" toml:"whisper_models_path" yaml:"whisper_models_path" help:"Directory holding ggml-<model>.bin files."`
	WhisperCachedModels  int          `name:"whisper_cached_models" toml:"whisper_cached_models" yaml:"whisper_cached_models" help:"How many local models to keep loaded."`
	OpenAIAPIKey         string       `name:"openai_api_key" toml:"openai_api_key" yaml:"openai_api_key" help:"Initial OpenAI API key, if none has been saved in settings."`
	OpenAIBaseURL        string       `name:"openai_base_url" toml:"openai_base_url" yaml:"openai_base_url" help:"Override the OpenAI API base URL."`
	YTDLPBinary          string       `name:"ytdlp_binary" toml:"ytdlp_binary" yaml:"ytdlp_binary" help:"yt-dlp program."`
	FFmpegBinary         string       `name:"ffmpeg_binary" toml:"ffmpeg_binary" yaml:"ffmpeg_binary" help:"ffmpeg program."`
}

func (c Config) DataFile(section string, parts ...string) string {
	return filepath.Join(append([]string{c.ApplicationDataPath, section}, parts...)...)
}

// RelativeDataFile is the form of a data file path that gets stored in the
// database: relative to the data path, slash separated.
func (c Config) RelativeDataFile(section string, parts ...string) string {
	return filepath.ToSlash(filepath.Join(append([]string{section}, parts...)...))
}

// ResolveDataFile turns a stored relative path back into a filesystem path.
func (c Config) ResolveDataFile(rel string) string {
	return filepath.Join(c.ApplicationDataPath, filepath.FromSlash(rel))
}
