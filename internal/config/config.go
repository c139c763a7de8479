package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything one invocation needs. It is built once in main and
// passed explicitly; nothing in the service reads configuration globals.
type Config struct {
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`

	// Recording objects, relative to <session>/<interview>/raw/ in the bucket.
	AudioName string `yaml:"audio_name"`
	VideoName string `yaml:"video_name"`
	Language  string `yaml:"language"`

	// Speech services
	WhisperAPIKey      string `yaml:"-"`
	DiarizationURL     string `yaml:"diarization_url"`
	TranscriptionURL   string `yaml:"transcription_url"`
	TranscriptionModel string `yaml:"transcription_model"`
	NumSpeakers        int    `yaml:"num_speakers"`

	// Sentiment-analysis services, one endpoint per modality.
	AudioAPIURL string `yaml:"audio_api_url"`
	TextAPIURL  string `yaml:"text_api_url"`
	VideoAPIURL string `yaml:"video_api_url"`

	// Supabase project: storage REST for objects, Postgres for records.
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"-"`
	Bucket      string `yaml:"bucket"`
	DatabaseURL string `yaml:"-"`

	// Env only (REQUEST_TIMEOUT_SEC); bounds each analysis request.
	RequestTimeout time.Duration `yaml:"-"`
}

// Load reads the optional YAML file at path, then overrides from environment.
// A missing file is not an error; missing required keys are reported by
// Validate, all at once.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:               "8000",
		AudioName:          "audio.mp3",
		VideoName:          "video.mp4",
		Language:           "fr",
		TranscriptionModel: "whisper-1",
		NumSpeakers:        2,
		Bucket:             "interviews",
		RequestTimeout:     30 * time.Second,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.Port, "PORT")
	setString(&c.AudioName, "AUDIO_NAME")
	setString(&c.VideoName, "VIDEO_NAME")
	setString(&c.Language, "LANGUAGE")
	setString(&c.WhisperAPIKey, "WHISPER_API_KEY")
	setString(&c.DiarizationURL, "DIARIZATION_API_URL")
	setString(&c.TranscriptionURL, "STT_API_URL")
	setString(&c.TranscriptionModel, "STT_MODEL")
	setString(&c.AudioAPIURL, "API_AUDIO_URL")
	setString(&c.TextAPIURL, "API_TEXT_URL")
	setString(&c.VideoAPIURL, "API_VIDEO_URL")
	setString(&c.SupabaseURL, "SUPABASE_URL")
	setString(&c.SupabaseKey, "SUPABASE_KEY")
	setString(&c.Bucket, "SUPABASE_BUCKET")
	setString(&c.DatabaseURL, "DATABASE_URL")

	if v := os.Getenv("NUM_SPEAKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.NumSpeakers = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RequestTimeout = time.Duration(n) * time.Second
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate reports every missing required setting in one error.
func (c *Config) Validate() error {
	var missing []string

	required := map[string]string{
		"DIARIZATION_API_URL": c.DiarizationURL,
		"STT_API_URL":         c.TranscriptionURL,
		"API_AUDIO_URL":       c.AudioAPIURL,
		"API_TEXT_URL":        c.TextAPIURL,
		"API_VIDEO_URL":       c.VideoAPIURL,
		"SUPABASE_URL":        c.SupabaseURL,
		"SUPABASE_KEY":        c.SupabaseKey,
		"DATABASE_URL":        c.DatabaseURL,
	}
	for key, val := range required {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("configuration incomplete, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}
