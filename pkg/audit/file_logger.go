package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const currentLogName = "audit.log"

var errFileLoggerClosed = errors.New("audit log file is closed")

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath   string // directory holding audit.log and its backups
	MaxSizeMB  int    // size at which audit.log is rotated
	MaxBackups int    // rotated files kept; 0 keeps all
	MaxAgeDays int    // rotated files older than this are removed; 0 disables
	Compress   bool   // gzip rotated files
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath:   "/var/log/gamut/audit",
		MaxSizeMB:  100,
		MaxBackups: 10,
		MaxAgeDays: 90,
	}
}

// FileLogger appends audit events to BasePath/audit.log as JSON lines.
// Rotation and retention are delegated to lumberjack.
type FileLogger struct {
	mu     sync.Mutex
	out    *lumberjack.Logger
	closed bool
}

// NewFileLogger creates the log directory. audit.log is opened on the first write.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("audit log directory is required")
	}
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = DefaultFileLoggerConfig().MaxSizeMB
	}

	return &FileLogger{out: &lumberjack.Logger{
		Filename:   filepath.Join(config.BasePath, currentLogName),
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   config.Compress,
	}}, nil
}

// Name identifies the sink in multi-logger metrics
func (l *FileLogger) Name() string { return "file" }

// Log appends event as a single line
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errFileLoggerClosed
	}
	if _, err := l.out.Write(line); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Rotate moves audit.log aside and starts a new one
func (l *FileLogger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errFileLoggerClosed
	}
	return l.out.Rotate()
}

// Close closes the current file. Later writes fail instead of reopening it.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.out.Close()
}

// RotatedFiles lists rotated log files, oldest first
func (l *FileLogger) RotatedFiles() ([]string, error) {
	dir := filepath.Dir(l.out.Filename)
	files, err := filepath.Glob(filepath.Join(dir, "audit-*.log*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadLogs reads up to count events from the current file. A count of zero reads all.
func (l *FileLogger) ReadLogs(count int) ([]*Event, error) {
	file, err := os.Open(l.out.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()
	return decodeEvents(file, count)
}

func decodeEvents(r io.Reader, count int) ([]*Event, error) {
	var events []*Event
	dec := json.NewDecoder(r)
	for count <= 0 || len(events) < count {
		event := new(Event)
		err := dec.Decode(event)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
