// Package media shells out to ffmpeg for the two audio operations the
// pipelines need: pulling the audio track out of a video and cutting a
// millisecond range out of an audio blob. Everything runs over pipes; no
// temp files.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type AudioProcessor interface {
	ExtractAudio(ctx context.Context, video []byte) ([]byte, error)
	Slice(ctx context.Context, audio []byte, startMS, endMS int) ([]byte, error)
}

type FFmpeg struct{}

// ExtractAudio returns the MP3 audio track of the given video.
func (FFmpeg) ExtractAudio(ctx context.Context, video []byte) ([]byte, error) {
	return run(ctx, video,
		"-i", "pipe:0",
		"-vn",
		"-acodec", "libmp3lame",
		"-f", "mp3",
		"pipe:1",
	)
}

// Slice cuts [startMS, endMS) out of an MP3 blob.
func (FFmpeg) Slice(ctx context.Context, audio []byte, startMS, endMS int) ([]byte, error) {
	if endMS <= startMS {
		return nil, fmt.Errorf("invalid slice range %d..%d", startMS, endMS)
	}
	return run(ctx, audio,
		"-ss", msToSeconds(startMS),
		"-to", msToSeconds(endMS),
		"-i", "pipe:0",
		"-acodec", "copy",
		"-f", "mp3",
		"pipe:1",
	)
}

func msToSeconds(ms int) string {
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

func run(ctx context.Context, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
	cmd.Stdin = bytes.NewReader(input)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return out.Bytes(), nil
}
