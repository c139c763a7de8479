package logger

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Buffer is a logrus hook that keeps formatted log lines in memory so a whole
// invocation's log can be shipped to object storage in one upload. Safe for
// concurrent use; the fan-out goroutines may log while holding the same entry.
type Buffer struct {
	mu        sync.Mutex
	lines     []string
	formatter logrus.Formatter
}

func newBuffer() *Buffer {
	return &Buffer{
		formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			DisableColors:   true,
		},
	}
}

func (b *Buffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (b *Buffer) Fire(entry *logrus.Entry) error {
	line, err := b.formatter.Format(entry)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.lines = append(b.lines, strings.TrimRight(string(line), "\n"))
	b.mu.Unlock()
	return nil
}

// Flush returns the buffered log joined by newlines and clears the buffer.
// Returns "" when nothing was logged.
func (b *Buffer) Flush() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return ""
	}
	out := strings.Join(b.lines, "\n")
	b.lines = nil
	return out
}
