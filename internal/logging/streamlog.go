package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Stream debug logging is opt-in; the event feed is chatty and the log is
// only useful when diagnosing delivery problems against a live gateway.

const streamDebugEnv = "PARLEY_STREAM_DEBUG"

var (
	streamLogger     Logger
	streamLoggerOnce sync.Once
)

func StreamDebugEnabled() bool {
	return strings.TrimSpace(os.Getenv(streamDebugEnv)) == "1"
}

// StreamDebug returns a file-backed logger for gateway event-stream
// diagnostics, or Nop when debugging is disabled.
func StreamDebug() Logger {
	if !StreamDebugEnabled() {
		return Nop()
	}
	streamLoggerOnce.Do(func() {
		path := ""
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			path = filepath.Join(home, ".parley", "stream.log")
		}
		if path == "" {
			path = filepath.Join(os.TempDir(), "parley-stream.log")
		}
		_ = os.MkdirAll(filepath.Dir(path), 0o700)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			streamLogger = New(os.Stderr, Debug)
			return
		}
		streamLogger = New(file, Debug)
	})
	return streamLogger
}
