// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/stallwatch/internal/command"
	"firestige.xyz/stallwatch/internal/config"
	"firestige.xyz/stallwatch/internal/core"
	logpkg "firestige.xyz/stallwatch/internal/log"
	"firestige.xyz/stallwatch/internal/metrics"
	"firestige.xyz/stallwatch/internal/network"
	"firestige.xyz/stallwatch/internal/power"
	"firestige.xyz/stallwatch/internal/reporter"
	"firestige.xyz/stallwatch/internal/sockdiag"
	"firestige.xyz/stallwatch/internal/tracker"
)

// Config namespaces the daemon follows on reload.
const (
	namespaceLog  = "log"
	namespacePoll = "poll"
)

// idleSource is the idle signal plus its teardown.
type idleSource interface {
	tracker.IdleSignal
	Close() error
}

type neverIdle struct{ power.Never }

func (neverIdle) Close() error { return nil }

// Option overrides a collaborator of the daemon.
type Option func(*Daemon)

// WithKernel replaces the netlink sock_diag kernel.
func WithKernel(k tracker.Kernel) Option {
	return func(d *Daemon) { d.kernel = k }
}

// WithSupported replaces the kernel capability check.
func WithSupported(f func() bool) Option {
	return func(d *Daemon) { d.supported = f }
}

// WithPIDFile writes the process ID to path while running.
func WithPIDFile(path string) Option {
	return func(d *Daemon) { d.pidFile = path }
}

// WithSocket serves the control channel on a Unix socket at path.
func WithSocket(path string) Option {
	return func(d *Daemon) { d.socketPath = path }
}

// WithReporter replaces the reporters built from configuration.
func WithReporter(r reporter.Reporter) Option {
	return func(d *Daemon) { d.reporter = r }
}

// Daemon polls every configured network and reports stall transitions.
type Daemon struct {
	configPath string
	pidFile    string
	socketPath string
	provider   *config.Provider
	config     *config.GlobalConfig

	// Collaborators
	kernel        tracker.Kernel
	supported     func() bool
	resolver      network.Resolver
	closeResolver func() error
	idle          idleSource
	reporter      reporter.Reporter
	metricsServer *metrics.Server    // nil if metrics disabled
	udsServer     *command.UDSServer // nil without a control socket

	trackers  []*tracker.TCPSocketTracker
	suspected map[string]bool

	listeners []core.ConfigListener
	intervalC chan time.Duration

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
}

// New loads the configuration at configPath.
func New(configPath string, opts ...Option) (*Daemon, error) {
	provider, err := config.NewProvider(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		configPath:   configPath,
		provider:     provider,
		config:       provider.Config(),
		suspected:    make(map[string]bool),
		intervalC:    make(chan time.Duration, 1),
		shutdownChan: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.kernel == nil {
		d.kernel = sockdiag.NewKernel(sockdiag.KernelConfig{
			NetNSPath:   d.config.Poll.NetNS,
			ReadTimeout: d.config.Poll.ReadTimeoutDuration(),
			RecvBuffer:  d.config.Poll.RecvBuffer,
		})
	}
	if d.supported == nil {
		d.supported = sockdiag.Supported
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := logpkg.Init(d.config.Log, d.config.Node); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting stallwatch daemon",
		"hostname", d.config.Node.Hostname,
		"config", d.configPath,
		"networks", len(d.config.Networks),
		"interval", d.config.Poll.IntervalDuration(),
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return d.abortStart(fmt.Errorf("failed to start metrics server: %w", err))
	}

	// 4. Build resolver, idle signal and trackers
	if err := d.setup(); err != nil {
		return d.abortStart(err)
	}

	// 5. Reporters
	if d.reporter == nil {
		reporters, err := reporter.FromConfig(d.config.Reporters)
		if err != nil {
			return d.abortStart(fmt.Errorf("failed to create reporters: %w", err))
		}
		d.reporter = reporters
	}

	// 6. Follow live configuration
	d.listen(namespaceLog, d.onLogChanged)
	d.listen(namespacePoll, d.onPollChanged)
	d.provider.Watch()

	// 7. Control socket for the CLI
	if d.socketPath != "" {
		handler := command.NewCommandHandler(d, d)
		handler.SetShutdownFunc(d.TriggerShutdown)
		d.udsServer = command.NewUDSServer(d.socketPath, handler)
		if err := d.udsServer.Listen(d.ctx); err != nil {
			d.udsServer = nil
			return d.abortStart(fmt.Errorf("failed to start control socket: %w", err))
		}
	}

	// 8. Poll loop
	d.wg.Add(1)
	go d.loop(d.config.Poll.IntervalDuration())

	slog.Info("daemon started successfully")
	return nil
}

// setup builds the per-network trackers.
func (d *Daemon) setup() error {
	resolver, closeResolver, err := network.FromConfig(d.config.Networks, d.config.Poll.NetNS)
	if err != nil {
		return fmt.Errorf("failed to create network resolver: %w", err)
	}
	d.resolver, d.closeResolver = resolver, closeResolver

	if d.config.Power.IdleFile != "" {
		fs := power.NewFileSignal(d.config.Power.IdleFile)
		if err := fs.Start(); err != nil {
			slog.Warn("idle file watch failed, idle state read once", "file", d.config.Power.IdleFile, "error", err)
		}
		d.idle = fs
	} else {
		d.idle = neverIdle{}
	}

	deps := tracker.Dependencies{
		Kernel:    d.kernel,
		Resolver:  d.resolver,
		Config:    d.provider,
		Idle:      d.idle,
		Supported: d.supported,
	}
	for _, n := range d.config.Networks {
		t, err := tracker.NewTCPSocketTracker(deps, n.Name)
		if err != nil {
			return fmt.Errorf("failed to create tracker: %w", err)
		}
		d.trackers = append(d.trackers, t)
	}
	return nil
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		slog.Info("initiating graceful shutdown")

		// 1. Stop the control socket (no new CLI commands)
		if d.udsServer != nil {
			_ = d.udsServer.Stop()
		}

		// 2. Stop the poll loop
		d.cancel()
		d.wg.Wait()

		// 3. Unregister signal handler to prevent goroutine leak
		if d.sigChan != nil {
			signal.Stop(d.sigChan)
		}

		// 4. Trackers, idle signal, resolver, reporters
		d.teardown()

		// 5. Stop metrics server
		d.stopMetrics()

		// 6. Remove PID file
		if err := d.removePIDFile(); err != nil {
			slog.Error("error removing PID file", "error", err)
		}

		slog.Info("daemon stopped gracefully")

		// 7. Flush logs
		_ = logpkg.Close()
	})
}

// abortStart undoes a partial Start and returns err.
func (d *Daemon) abortStart(err error) error {
	d.teardown()
	d.stopMetrics()
	if rmErr := d.removePIDFile(); rmErr != nil {
		slog.Error("error removing PID file", "error", rmErr)
	}
	return err
}

func (d *Daemon) stopMetrics() {
	if d.metricsServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.metricsServer.Stop(shutdownCtx); err != nil {
		slog.Error("error stopping metrics server", "error", err)
	}
	d.metricsServer = nil
}

func (d *Daemon) teardown() {
	for _, l := range d.listeners {
		d.provider.RemoveListener(l)
	}
	d.listeners = nil

	for _, t := range d.trackers {
		t.Quit()
	}
	d.trackers = nil

	if d.idle != nil {
		if err := d.idle.Close(); err != nil {
			slog.Error("error closing idle signal", "error", err)
		}
		d.idle = nil
	}
	if d.closeResolver != nil {
		if err := d.closeResolver(); err != nil {
			slog.Error("error closing network resolver", "error", err)
		}
		d.closeResolver = nil
	}
	if d.reporter != nil {
		if err := d.reporter.Close(); err != nil {
			slog.Error("error closing reporters", "error", err)
		}
		d.reporter = nil
	}
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// SIGTERM and SIGINT stop the daemon; SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads the configuration file. Thresholds, log level and poll
// interval apply live; networks, reporters and listen addresses keep their
// startup values until restart.
func (d *Daemon) Reload() error {
	if err := d.provider.Reload(); err != nil {
		return err
	}
	current := d.provider.Config()

	var requiresRestart []string
	if !slices.Equal(current.Networks, d.config.Networks) {
		requiresRestart = append(requiresRestart, "networks")
	}
	if current.Metrics.Listen != d.config.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}
	if current.Power.IdleFile != d.config.Power.IdleFile {
		requiresRestart = append(requiresRestart, "power.idle_file")
	}
	if !reflect.DeepEqual(current.Reporters, d.config.Reporters) {
		requiresRestart = append(requiresRestart, "reporters")
	}

	slog.Info("configuration reloaded", "requires_restart", requiresRestart)
	return nil
}

// TriggerShutdown stops Run from another goroutine.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

func (d *Daemon) loop(interval time.Duration) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.pollAll(d.ctx)
	for {
		select {
		case <-ticker.C:
			d.pollAll(d.ctx)
		case iv := <-d.intervalC:
			if iv != interval {
				slog.Info("poll interval changed", "from", interval, "to", iv)
				interval = iv
				ticker.Reset(iv)
			}
		case <-d.ctx.Done():
			return
		}
	}
}

// pollAll polls every tracker once, publishes gauges and reports stall
// transitions.
func (d *Daemon) pollAll(ctx context.Context) []tracker.NetworkStatus {
	out := make([]tracker.NetworkStatus, 0, len(d.trackers))
	for _, t := range d.trackers {
		name := t.Network()
		t.PollSocketsInfo()
		status := t.Status()
		out = append(out, status)

		metrics.PacketFailPercentage.WithLabelValues(name).Set(float64(t.LatestPacketFailPercentage()))
		metrics.SentSinceLastRecv.WithLabelValues(name).Set(float64(status.SentSinceLastRecv))

		suspected := t.IsDataStallSuspected()
		metrics.DataStallSuspected.WithLabelValues(name).Set(metrics.BoolValue(suspected))
		if suspected == d.suspected[name] {
			continue
		}
		d.suspected[name] = suspected

		node := d.provider.Config().Node
		ev := reporter.Event{
			Node:              node.Hostname,
			NodeIP:            node.IP,
			Tags:              node.Tags,
			Network:           name,
			Suspected:         suspected,
			FailPercentage:    status.FailPercentage,
			Sent:              status.Sent,
			SentSinceLastRecv: status.SentSinceLastRecv,
			Received:          status.Received,
			Timestamp:         time.Now(),
		}
		metrics.StallTransitionsTotal.WithLabelValues(name, ev.State()).Inc()
		if d.reporter != nil {
			if err := d.reporter.Report(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("failed to report stall transition", "network", name, "error", err)
			}
		}
	}
	return out
}

// Status reports the latest state of every network without polling.
func (d *Daemon) Status() []tracker.NetworkStatus {
	out := make([]tracker.NetworkStatus, 0, len(d.trackers))
	for _, t := range d.trackers {
		out = append(out, t.Status())
	}
	return out
}

// namespaceListener adapts a func to core.ConfigListener. It is a pointer
// type so it can key the provider's listener map.
type namespaceListener struct {
	fn func(namespace string)
}

func (l *namespaceListener) OnPropertiesChanged(namespace string) { l.fn(namespace) }

func (d *Daemon) listen(namespace string, fn func(string)) {
	l := &namespaceListener{fn: fn}
	d.provider.AddListener(namespace, l)
	d.listeners = append(d.listeners, l)
}

func (d *Daemon) onLogChanged(string) {
	if err := logpkg.SetLevel(d.provider.GetString(namespaceLog, "level", "info")); err != nil {
		slog.Warn("ignoring log level change", "error", err)
	}
}

func (d *Daemon) onPollChanged(string) {
	iv := d.provider.Config().Poll.IntervalDuration()
	select {
	case d.intervalC <- iv:
	default:
		// Replace a pending value.
		select {
		case <-d.intervalC:
		default:
		}
		d.intervalC <- iv
	}
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}

// PollOnce builds the trackers of configPath, polls each network once and
// returns their state. Nothing is reported.
func PollOnce(configPath string, opts ...Option) ([]tracker.NetworkStatus, error) {
	d, err := New(configPath, opts...)
	if err != nil {
		return nil, err
	}
	defer d.teardown()

	if err := d.setup(); err != nil {
		return nil, err
	}
	return d.pollAll(context.Background()), nil
}
