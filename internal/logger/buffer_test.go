package logger

import (
	"strings"
	"testing"
)

func TestBufferCollectsAndFlushes(t *testing.T) {
	log, buf := NewBuffered()

	log.Info("diarization started")
	log.WithField("segments", 3).Info("diarization done")
	log.Error("something broke")

	out := buf.Flush()
	for _, want := range []string{"diarization started", "diarization done", "something broke"} {
		if !strings.Contains(out, want) {
			t.Errorf("flushed log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("buffered log contains color escapes")
	}

	if again := buf.Flush(); again != "" {
		t.Errorf("second flush should be empty, got %q", again)
	}
}

func TestBufferEmptyFlush(t *testing.T) {
	_, buf := NewBuffered()
	if out := buf.Flush(); out != "" {
		t.Errorf("flush of empty buffer = %q", out)
	}
}
