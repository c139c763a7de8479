// Package storage is the object-store gateway: byte blobs in and out of the
// Supabase storage bucket holding the interview recordings and outputs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrNotFound reports a missing object; preprocess uses it to fall back from
// the pre-extracted audio to the raw video.
var ErrNotFound = errors.New("storage: object not found")

type ObjectStore interface {
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte, contentType string) error
}

type Client struct {
	baseURL string
	key     string
	bucket  string
	http    *http.Client
	log     *logrus.Entry
}

func NewClient(baseURL, key, bucket string, log *logrus.Entry) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		bucket:  bucket,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

func (c *Client) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(path, "/"))
}

func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	var data []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(path), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.key)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, path))
		case resp.StatusCode >= 500:
			return fmt.Errorf("storage download %s: HTTP %d", path, resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("storage download %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body))))
		}
		data = body
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return nil, err
	}
	c.log.WithField("path", path).WithField("bytes", len(data)).Info("object downloaded")
	return data, nil
}

func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(path), bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("storage upload %s: HTTP %d", path, resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("storage upload %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body))))
		}
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return err
	}
	c.log.WithField("path", path).WithField("bytes", len(data)).Info("object uploaded")
	return nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(bo, ctx)
}
