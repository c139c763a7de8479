// Package diarize submits the whole interview audio to the diarization
// endpoint and normalizes the response into millisecond segments with integer
// speaker labels.
package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/Projet-annuel-5A/api-middleware/internal/types"
)

type Diarizer interface {
	Diarize(ctx context.Context, audio []byte) ([]types.Segment, error)
}

type response struct {
	Diarization []struct {
		StartTime float64 `json:"startTime"`
		StopTime  float64 `json:"stopTime"`
		Speaker   string  `json:"speaker"`
	} `json:"diarization"`
}

type Client struct {
	url         string
	apiKey      string
	language    string
	numSpeakers int
	http        *http.Client
	log         *logrus.Entry
}

func NewClient(url, apiKey, language string, numSpeakers int, timeout time.Duration, log *logrus.Entry) *Client {
	return &Client{
		url:         url,
		apiKey:      apiKey,
		language:    language,
		numSpeakers: numSpeakers,
		http:        &http.Client{Timeout: timeout},
		log:         log,
	}
}

func (c *Client) Diarize(ctx context.Context, audio []byte) ([]types.Segment, error) {
	c.log.WithField("bytes", len(audio)).Info("starting diarization")

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", "audio.mp3")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	w.WriteField("num_speakers", strconv.Itoa(c.numSpeakers))
	w.WriteField("language", c.language)
	w.WriteField("diarization", "true")
	w.WriteField("task", "transcribe")
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var parsed response
	if err := c.doJSON(ctx, req, &parsed); err != nil {
		return nil, fmt.Errorf("diarization request: %w", err)
	}

	segments := make([]types.Segment, 0, len(parsed.Diarization))
	for _, d := range parsed.Diarization {
		speaker, err := parseSpeaker(d.Speaker)
		if err != nil {
			return nil, fmt.Errorf("diarization response: %w", err)
		}
		segments = append(segments, types.Segment{
			Start:   int(d.StartTime * 1000),
			End:     int(d.StopTime * 1000),
			Speaker: speaker,
		})
	}

	c.log.WithField("segments", len(segments)).Info("diarization done")
	return segments, nil
}

// parseSpeaker extracts the numeric part of compound labels like SPEAKER_01.
func parseSpeaker(label string) (int, error) {
	parts := strings.Split(label, "_")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("unexpected speaker label %q", label)
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, req *http.Request, target interface{}) error {
	body := req.Body
	var raw []byte
	if body != nil {
		var err error
		raw, err = io.ReadAll(body)
		body.Close()
		if err != nil {
			return err
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	var lastErr error

	op := func() error {
		attempt := req.Clone(ctx)
		if raw != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(raw))
		}
		resp, err := c.http.Do(attempt)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
			return lastErr
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(data, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(data))
			return backoff.Permanent(lastErr)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return lastErr
	}
	return nil
}
