// Package transcribe turns one audio clip into text through an
// OpenAI-compatible speech-to-text endpoint.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

type Transcriber interface {
	Transcribe(ctx context.Context, clip []byte, name string) (string, error)
}

type Whisper struct {
	client   *openai.Client
	model    string
	language string
	log      *logrus.Entry
}

// NewWhisper points the client at baseURL, which may be the OpenAI API or any
// compatible self-hosted whisper deployment.
func NewWhisper(baseURL, apiKey, model, language string, log *logrus.Entry) *Whisper {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Whisper{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
		log:      log,
	}
}

func (w *Whisper) Transcribe(ctx context.Context, clip []byte, name string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: name,
		Reader:   bytes.NewReader(clip),
		Language: w.language,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("transcription of %s: %w", name, err)
	}
	w.log.WithField("clip", name).Debug("clip transcribed")
	return strings.TrimSpace(resp.Text), nil
}
