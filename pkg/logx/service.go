package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	kit "fisherbot/internal/transport"
)

const defaultLogFile = "./log/fisherbot.log"

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the active sinks. Apply rebuilds them and swaps the root
// logger atomically; Loggers derived from the Service pick it up on their next
// event.
type Service struct {
	mu    sync.Mutex
	root  atomic.Pointer[zerolog.Logger]
	file  *os.File
	alert *alertSink
}

// New builds the service from cfg. sender may be nil, which disables the
// Telegram sink regardless of cfg.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	s := &Service{}
	if sender != nil {
		s.alert = newAlertSink(sender)
	}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// SetTelegramTarget sets the chat for the alert sink. chatID 0 mutes it.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	if s.alert != nil {
		s.alert.setTarget(chatID, threadID)
	}
}

// Apply swaps outputs and level. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if s.alert != nil {
		s.alert.configure(cfg.Telegram)
		if cfg.Telegram.Enabled {
			writers = append(writers, s.alert)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close flushes the alert queue and closes the log file.
func (s *Service) Close() error {
	if s.alert != nil {
		s.alert.close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log dir for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func consoleWriter(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stdout
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}
