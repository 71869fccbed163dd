package utilities

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RawLog appends raw device frames to daily files named
// <dir>/<prefix>_YYYYMMDD.log. A nil *RawLog discards everything.
type RawLog struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewRawLog returns nil when dir is empty.
func NewRawLog(dir string) (*RawLog, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("raw log dir: %w", err)
	}
	return &RawLog{dir: dir, now: time.Now}, nil
}

// Write stores message under prefix with a time of day stamp.
func (l *RawLog) Write(prefix, message string) error {
	if l == nil {
		return nil
	}
	now := l.now()
	filename := filepath.Join(l.dir, prefix+"_"+now.Format("20060102")+".log")

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(now.Format("15:04:05") + " - " + message + "\n")
	return err
}
