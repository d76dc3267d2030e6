package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	logx "fisherbot/pkg/logx"
)

// ConfigManager holds the committed config, reloads it from disk and fans
// reloads out to subscribers.
type ConfigManager struct {
	path   string
	getenv func(string) string

	mu        sync.RWMutex
	cfg       *Config
	committed []byte // canonical JSON of cfg, for change detection

	subsMu sync.Mutex
	nextID int
	subs   map[int]chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{
		path:   path,
		getenv: os.Getenv,
		subs:   make(map[int]chan *Config),
		log:    logx.Nop(),
	}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs a check that a reloaded config must pass before it is
// committed. The initial Load is not subject to it.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads the file, applies environment overrides and validates it
// without committing.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(m.path, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}
	applyEnv(cfg, m.getenv)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}
	return cfg, nil
}

func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg, canonical(cfg))
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel receiving every committed reload and a func
// that unsubscribes and closes it.
func (m *ConfigManager) Subscribe(buffer int) (<-chan *Config, func()) {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
			close(ch)
		})
	}
}

func (m *ConfigManager) commit(cfg *Config, raw []byte) {
	m.mu.Lock()
	m.cfg = cfg
	m.committed = raw
	m.mu.Unlock()
}

func canonical(cfg *Config) []byte {
	b, _ := json.Marshal(cfg)
	return b
}

// publish hands cfg to every subscriber. A full subscriber has its oldest
// pending config replaced so the newest one always lands.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, ch := range m.subs {
		if offer(ch, cfg) {
			continue
		}
		select {
		case <-ch:
		default:
		}
		if !offer(ch, cfg) {
			m.log.Debug("config update dropped for slow subscriber", logx.Int("sub", id))
		}
	}
}

func offer(ch chan *Config, cfg *Config) bool {
	select {
	case ch <- cfg:
		return true
	default:
		return false
	}
}

// reload parses the file and, if it parses, passes validation and differs
// from the committed config, commits and publishes it.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed; keeping previous", logx.String("path", m.path), logx.Err(err))
		return
	}
	raw := canonical(cfg)
	m.mu.RLock()
	same := bytes.Equal(raw, m.committed)
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
			return
		}
	}
	m.commit(cfg, raw)
	m.publish(cfg)
}
