package tracker

import "log/slog"

// Configuration namespace and keys read by ConfigWatcher.
const (
	NamespaceConnectivity       = "connectivity"
	KeyTCPPacketsFailPercentage = "tcp_packets_fail_percentage"
	KeyTCPMinPacketsThreshold   = "tcp_min_packets_threshold"
)

// ConfigWatcher keeps a StallConfig in sync with a ConfigProvider.
type ConfigWatcher struct {
	provider ConfigProvider
	cfg      *StallConfig
}

// NewConfigWatcher loads the current values from provider into cfg.
func NewConfigWatcher(provider ConfigProvider, cfg *StallConfig) *ConfigWatcher {
	w := &ConfigWatcher{provider: provider, cfg: cfg}
	w.refresh()
	return w
}

// OnPropertiesChanged re-reads both thresholds.
func (w *ConfigWatcher) OnPropertiesChanged(namespace string) {
	if namespace != "" && namespace != NamespaceConnectivity {
		return
	}
	w.refresh()
}

// OnThresholdChanged sets the fail percentage threshold directly.
func (w *ConfigWatcher) OnThresholdChanged(v int) {
	w.cfg.SetFailPercentageThreshold(v)
}

func (w *ConfigWatcher) refresh() {
	if w.provider == nil {
		return
	}
	fail := w.provider.GetInt(NamespaceConnectivity, KeyTCPPacketsFailPercentage, DefaultFailPercentageThreshold)
	minPackets := w.provider.GetInt(NamespaceConnectivity, KeyTCPMinPacketsThreshold, DefaultMinPacketsThreshold)

	if fail != w.cfg.FailPercentageThreshold() || minPackets != w.cfg.MinPacketsThreshold() {
		slog.Info("stall thresholds updated",
			"fail_percentage", fail,
			"min_packets", minPackets)
	}
	w.cfg.SetFailPercentageThreshold(fail)
	w.cfg.SetMinPacketsThreshold(minPackets)
}
