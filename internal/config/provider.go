package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"firestige.xyz/stallwatch/internal/core"
	"firestige.xyz/stallwatch/internal/metrics"
)

// Provider serves live settings from the config file. Values are read from
// an immutable snapshot that is swapped on every successful reload; a
// reload that fails validation keeps the previous snapshot.
type Provider struct {
	path string

	mu        sync.RWMutex
	cfg       *GlobalConfig
	snapshot  map[string]any
	listeners map[core.ConfigListener]string

	watchOnce sync.Once
}

// NewProvider loads path and returns a Provider serving it.
func NewProvider(path string) (*Provider, error) {
	p := &Provider{
		path:      path,
		listeners: make(map[core.ConfigListener]string),
	}
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	p.cfg = cfg
	p.snapshot = flatten(v)
	return p, nil
}

// Config returns the last successfully loaded configuration.
func (p *Provider) Config() *GlobalConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// GetInt returns stallwatch.<namespace>.<key> as an int, or def when the key
// is missing or not numeric.
func (p *Provider) GetInt(namespace, key string, def int) int {
	p.mu.RLock()
	raw, ok := p.snapshot[settingKey(namespace, key)]
	p.mu.RUnlock()
	if !ok {
		return def
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		slog.Warn("ignoring non-integer setting", "namespace", namespace, "key", key, "value", raw)
		return def
	}
	return v
}

// GetString returns stallwatch.<namespace>.<key> as a string, or def.
func (p *Provider) GetString(namespace, key, def string) string {
	p.mu.RLock()
	raw, ok := p.snapshot[settingKey(namespace, key)]
	p.mu.RUnlock()
	if !ok {
		return def
	}
	return cast.ToString(raw)
}

// AddListener subscribes l to changes of namespace.
func (p *Provider) AddListener(namespace string, l core.ConfigListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[l] = strings.ToLower(namespace)
}

// RemoveListener unsubscribes l.
func (p *Provider) RemoveListener(l core.ConfigListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, l)
}

// Reload re-reads the file and notifies listeners of changed namespaces.
func (p *Provider) Reload() error {
	v, err := newViper(p.path)
	if err == nil {
		var cfg *GlobalConfig
		if cfg, err = decode(v); err == nil {
			p.swap(cfg, flatten(v))
			metrics.ConfigReloadsTotal.WithLabelValues(core.ResultOK).Inc()
			return nil
		}
	}
	metrics.ConfigReloadsTotal.WithLabelValues(core.ResultError).Inc()
	slog.Warn("config reload failed, keeping previous values", "path", p.path, "error", err)
	return fmt.Errorf("reload %s: %w", p.path, err)
}

// Watch reloads whenever the file changes on disk.
func (p *Provider) Watch() {
	p.watchOnce.Do(func() {
		w := viper.New()
		w.SetConfigFile(p.path)
		if err := w.ReadInConfig(); err != nil {
			slog.Warn("config watch disabled", "path", p.path, "error", err)
			return
		}
		w.OnConfigChange(func(e fsnotify.Event) {
			slog.Info("config file changed", "path", e.Name, "op", e.Op.String())
			_ = p.Reload()
		})
		w.WatchConfig()
		slog.Info("watching config file", "path", p.path)
	})
}

func (p *Provider) swap(cfg *GlobalConfig, snapshot map[string]any) {
	p.mu.Lock()
	changed := changedNamespaces(p.snapshot, snapshot)
	p.cfg = cfg
	p.snapshot = snapshot
	var notify []core.ConfigListener
	var namespaces []string
	for l, ns := range p.listeners {
		if changed[ns] {
			notify = append(notify, l)
			namespaces = append(namespaces, ns)
		}
	}
	p.mu.Unlock()

	if len(changed) > 0 {
		slog.Info("config reloaded", "path", p.path, "changed", len(changed))
	}
	// Listeners read back through GetInt, so call them without the lock.
	for i, l := range notify {
		l.OnPropertiesChanged(namespaces[i])
	}
}

func settingKey(namespace, key string) string {
	return strings.ToLower(RootKey + "." + namespace + "." + key)
}

// flatten resolves every known key, env overrides included.
func flatten(v *viper.Viper) map[string]any {
	out := make(map[string]any)
	for _, k := range v.AllKeys() {
		out[k] = v.Get(k)
	}
	return out
}

// changedNamespaces returns the sections under the root key whose values differ.
func changedNamespaces(before, after map[string]any) map[string]bool {
	changed := make(map[string]bool)
	mark := func(k string) {
		parts := strings.SplitN(k, ".", 3)
		if len(parts) >= 2 && parts[0] == RootKey {
			changed[parts[1]] = true
		}
	}
	for k, v := range after {
		if old, ok := before[k]; !ok || !reflect.DeepEqual(old, v) {
			mark(k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			mark(k)
		}
	}
	return changed
}
