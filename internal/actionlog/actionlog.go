// Package actionlog appends user-visible actions to one text file per day.
package actionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Recorder is what other components need from the action log.
type Recorder interface {
	Record(message string) error
}

type Logger struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// New writes into dir, creating it on first use.
func New(dir string) *Logger {
	return &Logger{dir: dir, now: time.Now}
}

// Path is the file holding the actions of t's calendar day.
func (l *Logger) Path(t time.Time) string {
	return filepath.Join(l.dir, "log-"+t.Format("2006-01-02")+".txt")
}

// Record appends "[YYYY-MM-DD HH:MM:SS] message" to today's file.
func (l *Logger) Record(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(l.Path(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open action log: %w", err)
	}
	if _, err := fmt.Fprintf(f, "[%s] %s\n", now.Format("2006-01-02 15:04:05"), message); err != nil {
		_ = f.Close()
		return fmt.Errorf("write action log: %w", err)
	}
	return f.Close()
}
