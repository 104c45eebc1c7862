package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// Holder provides thread-safe access to configuration with hot reload support.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	return &Holder{
		config: cfg,
		path:   absPath,
		logger: logger.With().Str("component", "config").Logger(),
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload reads the file again. On error the previous configuration is kept.
// Listeners run on the caller's goroutine after the swap.
func (h *Holder) Reload() error {
	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	listeners := append(([]func(*Config))(nil), h.onChange...)
	h.mu.Unlock()

	changed := Diff(oldCfg, newCfg)
	h.logChanges(oldCfg, newCfg, changed)

	for _, fn := range listeners {
		fn(newCfg)
	}
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile reloads whenever the config file is written or replaced.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory (more reliable for editors that do atomic saves)
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = watcher

	go h.watchLoop(watcher)

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop stops watching for file changes and signals. It is safe to call twice.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop(watcher *fsnotify.Watcher) {
	filename := filepath.Base(h.path)
	var debounce <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// atomic save = create
			if filepath.Base(event.Name) != filename || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			h.logger.Debug().Str("event", event.Op.String()).Msg("config file changed")
			debounce = time.After(reloadDebounce)

		case <-debounce:
			debounce = nil
			if err := h.Reload(); err != nil {
				h.logger.Error().Err(err).Msg("file watch reload failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(prev, next *Config, changed []string) {
	if len(changed) == 0 {
		h.logger.Info().Msg("configuration reloaded, nothing changed")
		return
	}

	var restart []string
	for _, name := range changed {
		if !fieldByName[name].reloadable {
			restart = append(restart, name)
		}
	}

	ev := h.logger.Info().Strs("changed", changed)
	if prev.Logging.Level != next.Logging.Level {
		ev = ev.Str("log_level", next.Logging.Level)
	}
	if prev.Dashboard.RefreshInterval != next.Dashboard.RefreshInterval {
		ev = ev.Dur("refresh_interval", next.Dashboard.RefreshInterval)
	}
	ev.Msg("configuration reloaded")

	if len(restart) > 0 {
		h.logger.Warn().Strs("fields", restart).Msg("restart required to apply changes")
	}
}

type field struct {
	name       string
	reloadable bool
	value      func(*Config) string
}

// fields lists every setting whose change is reported on reload.
// private_key is compared but never logged by value.
var fields = []field{
	{"dashboard.refresh_interval", true, func(c *Config) string { return c.Dashboard.RefreshInterval.String() }},
	{"logging.level", true, func(c *Config) string { return c.Logging.Level }},
	{"server.host", false, func(c *Config) string { return c.Server.Host }},
	{"server.port", false, func(c *Config) string { return fmt.Sprint(c.Server.Port) }},
	{"chain.rpc_url", false, func(c *Config) string { return c.Chain.RPCURL }},
	{"chain.chain_id", false, func(c *Config) string { return fmt.Sprint(c.Chain.ChainID) }},
	{"chain.coordinator", false, func(c *Config) string { return c.Chain.Coordinator }},
	{"chain.fee_model", false, func(c *Config) string { return c.Chain.FeeModel }},
	{"chain.access_controller", false, func(c *Config) string { return c.Chain.AccessController }},
	{"chain.fee_token", false, func(c *Config) string { return c.Chain.FeeToken }},
	{"chain.private_key", false, func(c *Config) string { return c.Chain.PrivateKey }},
	{"dashboard.idle_timeout", false, func(c *Config) string { return c.Dashboard.IdleTimeout.String() }},
	{"dashboard.max_sessions", false, func(c *Config) string { return fmt.Sprint(c.Dashboard.MaxSessions) }},
	{"dashboard.authorization_check_mode", false, func(c *Config) string { return c.Dashboard.AuthorizationCheckMode }},
	{"dashboard.rituals", false, func(c *Config) string { return fmt.Sprint(c.Dashboard.Rituals) }},
	{"database.driver", false, func(c *Config) string { return c.Database.Driver }},
	{"database.dsn", false, func(c *Config) string { return c.Database.DSN }},
}

var fieldByName = func() map[string]field {
	m := make(map[string]field, len(fields))
	for _, f := range fields {
		m[f.name] = f
	}
	return m
}()

// Diff returns the names of the settings that differ between prev and next.
func Diff(prev, next *Config) []string {
	var changed []string
	for _, f := range fields {
		if f.value(prev) != f.value(next) {
			changed = append(changed, f.name)
		}
	}
	return changed
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return fieldNames(true)
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return fieldNames(false)
}

func fieldNames(reloadable bool) []string {
	var names []string
	for _, f := range fields {
		if f.reloadable == reloadable {
			names = append(names, f.name)
		}
	}
	return names
}
