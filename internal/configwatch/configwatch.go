// Package configwatch loads the engine's tunable configuration from a YAML
// file, validates it, and can watch that file for changes so a long-running
// process can pick up new scheduling knobs without a restart.
package configwatch

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// WatchedConfig mirrors the engine's tunable knobs (§6 configuration
// surface) plus bookkeeping for hot-reload and versioning.
type WatchedConfig struct {
	Version           string        `yaml:"version"`
	UpdatedAt         time.Time     `yaml:"updated_at"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	QFine             int           `yaml:"q_fine"`
	QOut              int           `yaml:"q_out"`
	TReschedule       time.Duration `yaml:"t_reschedule"`
	GrabOnEvict       bool          `yaml:"grab_on_evict"`
	EnableMessages    bool          `yaml:"enable_messages"`
	EnableCheckpoints bool          `yaml:"enable_checkpoints"`
	FlushDelay        time.Duration `yaml:"flush_delay"`
	Checksum          string        `yaml:"checksum,omitempty"`
}

// Validator checks a loaded config before it is accepted. A validation
// failure is a ConfigInvalid condition: the caller should abort startup or
// reject the reload rather than run with an invalid config.
type Validator interface {
	Validate(cfg *WatchedConfig) error
}

type defaultValidator struct{}

func (defaultValidator) Validate(cfg *WatchedConfig) error {
	if cfg.MaxConcurrency < 0 {
		return fmt.Errorf("configwatch: max_concurrency must be non-negative")
	}
	if cfg.QFine < 0 || cfg.QOut < 0 {
		return fmt.Errorf("configwatch: queue depths must be non-negative")
	}
	if cfg.TReschedule < 0 || cfg.FlushDelay < 0 {
		return fmt.Errorf("configwatch: durations must be non-negative")
	}
	return nil
}

// Manager loads and persists a WatchedConfig from a single file path.
type Manager struct {
	path       string
	mu         sync.RWMutex
	current    *WatchedConfig
	validators []Validator
}

// NewManager constructs a Manager for the config file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path, current: &WatchedConfig{}, validators: []Validator{defaultValidator{}}}
}

// AddValidator registers an additional validator, run after the default one.
func (m *Manager) AddValidator(v Validator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators = append(m.validators, v)
}

// Load reads the config file, or leaves the current (zero) config in place
// if the file does not exist yet.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		m.current = &WatchedConfig{UpdatedAt: time.Now()}
		return nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("configwatch: read config file: %w", err)
	}
	var cfg WatchedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("configwatch: parse config file: %w", err)
	}
	if err := m.validateLocked(&cfg); err != nil {
		return fmt.Errorf("configwatch: invalid config: %w", err)
	}
	m.current = &cfg
	return nil
}

// Update validates and persists cfg, stamping it with a fresh checksum.
func (m *Manager) Update(cfg *WatchedConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.validateLocked(cfg); err != nil {
		return fmt.Errorf("configwatch: invalid config: %w", err)
	}
	cfg.UpdatedAt = time.Now()
	cfg.Checksum = checksum(cfg)
	m.current = cfg
	return m.saveLocked(cfg)
}

// Current returns a copy of the currently loaded config.
func (m *Manager) Current() WatchedConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.current
}

func (m *Manager) validateLocked(cfg *WatchedConfig) error {
	for _, v := range m.validators {
		if err := v.Validate(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) saveLocked(cfg *WatchedConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("configwatch: marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("configwatch: create config dir: %w", err)
	}
	return os.WriteFile(m.path, data, 0o644)
}

func checksum(cfg *WatchedConfig) string {
	cpy := *cfg
	cpy.Checksum = ""
	data, _ := json.Marshal(cpy)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// Change describes one observed modification to the watched file.
type Change struct {
	Config           *WatchedConfig
	ChangedAt        time.Time
	PreviousChecksum string
}

// Watcher emits a Change whenever the watched file is rewritten with content
// that actually differs from what was last seen.
type Watcher struct {
	path       string
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	isWatching bool
}

// NewWatcher constructs a Watcher over the file at path.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: create file watcher: %w", err)
	}
	return &Watcher{path: path, watcher: w}, nil
}

// Watch starts watching the config file's directory and streams Changes
// until ctx is canceled or Stop is called.
func (w *Watcher) Watch(ctx context.Context) (<-chan *Change, <-chan error) {
	changes := make(chan *Change, 10)
	errs := make(chan error, 10)

	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		errs <- fmt.Errorf("configwatch: watch dir %s: %w", dir, err)
		close(changes)
		close(errs)
		return changes, errs
	}
	w.isWatching = true
	w.mu.Unlock()

	go func() {
		defer close(changes)
		defer close(errs)
		var last *WatchedConfig
		for {
			select {
			case e, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if e.Name != w.path || e.Op&fsnotify.Write != fsnotify.Write {
					continue
				}
				cfg, err := w.loadFromFile()
				if err != nil {
					errs <- err
					continue
				}
				if !changed(last, cfg) {
					continue
				}
				ch := &Change{Config: cfg, ChangedAt: time.Now()}
				if last != nil {
					ch.PreviousChecksum = last.Checksum
				}
				changes <- ch
				last = cfg
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				errs <- err
			case <-ctx.Done():
				return
			}
		}
	}()
	return changes, errs
}

// Stop closes the underlying file watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isWatching {
		w.isWatching = false
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) loadFromFile() (*WatchedConfig, error) {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		return &WatchedConfig{}, nil
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("configwatch: read config file: %w", err)
	}
	var cfg WatchedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configwatch: parse config file: %w", err)
	}
	return &cfg, nil
}

func changed(oldC, newC *WatchedConfig) bool {
	if oldC == nil && newC == nil {
		return false
	}
	if oldC == nil || newC == nil {
		return true
	}
	if oldC.Checksum != "" && newC.Checksum != "" {
		return oldC.Checksum != newC.Checksum
	}
	od, _ := json.Marshal(oldC)
	nd, _ := json.Marshal(newC)
	return string(od) != string(nd)
}
