package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/stallwatch/internal/core"
	"firestige.xyz/stallwatch/internal/metrics"
	"firestige.xyz/stallwatch/internal/sockdiag"
)

// TCPSocketTracker polls TCP sockets of one network and evaluates them for
// a data stall. PollSocketsInfo must not be called concurrently; the getters
// and listener callbacks may run on any goroutine.
type TCPSocketTracker struct {
	deps      Dependencies
	network   string
	rule      core.NetworkMarkRule
	supported bool

	cfg     *StallConfig
	watcher *ConfigWatcher
	idle    atomic.Bool

	agg *statAggregator

	mu      sync.RWMutex
	latest  PollAggregate
	matched int
	polled  bool

	registered bool
}

// NewTCPSocketTracker builds a tracker for network. Listeners are only
// registered when tcp_info parsing is supported.
func NewTCPSocketTracker(deps Dependencies, network string) (*TCPSocketTracker, error) {
	t := &TCPSocketTracker{
		deps:      deps,
		network:   network,
		supported: deps.supported(),
		cfg:       NewStallConfig(),
		agg:       newStatAggregator(),
	}
	if !t.supported {
		slog.Info("tcp info parsing unsupported, tracker disabled", "network", network)
		return t, nil
	}

	if deps.Kernel == nil {
		return nil, errors.New("tracker: kernel channel is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("tracker: mark resolver is required")
	}

	rule, err := deps.Resolver.Resolve(network)
	if err != nil {
		return nil, fmt.Errorf("resolve fwmark of network %q: %w", network, err)
	}
	t.rule = rule

	t.watcher = NewConfigWatcher(deps.Config, t.cfg)
	if deps.Config != nil {
		deps.Config.AddListener(NamespaceConnectivity, t.watcher)
	}
	if deps.Idle != nil {
		t.idle.Store(deps.Idle.IsIdle())
		deps.Idle.AddListener(t)
	}
	t.registered = true

	slog.Info("tcp socket tracker created",
		"network", network,
		"rule", rule.String(),
		"fail_percentage", t.cfg.FailPercentageThreshold(),
		"min_packets", t.cfg.MinPacketsThreshold())
	return t, nil
}

// Network returns the tracked network name.
func (t *TCPSocketTracker) Network() string {
	return t.network
}

// Watcher returns the config watcher, or nil when unsupported.
func (t *TCPSocketTracker) Watcher() *ConfigWatcher {
	return t.watcher
}

// PollSocketsInfo dumps IPv4 and IPv6 TCP sockets and updates the latest
// aggregate. It returns whether a poll actually ran.
func (t *TCPSocketTracker) PollSocketsInfo() bool {
	if !t.supported {
		return false
	}
	if t.idle.Load() {
		metrics.PollsTotal.WithLabelValues(t.network, core.ResultIdle).Inc()
		return false
	}

	start := t.deps.now()
	ok := t.poll(start.UnixMilli())
	metrics.PollDurationSeconds.WithLabelValues(t.network).Observe(time.Since(start).Seconds())

	result := core.ResultOK
	if !ok {
		result = core.ResultError
	}
	metrics.PollsTotal.WithLabelValues(t.network, result).Inc()
	return ok
}

func (t *TCPSocketTracker) poll(now int64) bool {
	ch, err := t.deps.Kernel.Connect()
	if err != nil {
		slog.Warn("failed to connect to sock_diag", "network", t.network, "error", err)
		return false
	}
	defer ch.Close()

	t.agg.Reset()
	for _, family := range core.AddressFamilies {
		if err := ch.Send(sockdiag.EncodeRequest(family)); err != nil {
			if t.agg.Matched() == 0 {
				slog.Warn("failed to send sock_diag request",
					"network", t.network,
					"family", core.FamilyName(family),
					"error", err)
				return false
			}
			t.endPass(family, "failed to send sock_diag request", err)
			continue
		}

		err := t.readFamily(ch, now)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrMalformed):
			slog.Warn("abandoning dump on malformed record",
				"network", t.network,
				"family", core.FamilyName(family),
				"error", err)
			metrics.MalformedRecordsTotal.WithLabelValues(t.network, core.FamilyName(family)).Inc()
			t.agg.MarkNeutral()
		default:
			t.endPass(family, "sock_diag dump ended early", err)
		}
	}

	agg := t.agg.Finalize()
	expired := t.agg.Expire(now)
	matched := t.agg.Matched()

	t.mu.Lock()
	t.latest = agg
	t.matched = matched
	t.polled = true
	t.mu.Unlock()

	metrics.MatchedSockets.WithLabelValues(t.network).Set(float64(matched))
	slog.Debug("poll finished",
		"network", t.network,
		"sent", agg.Sent,
		"lost", agg.Lost,
		"received", agg.Received,
		"sent_since_last_recv", agg.SentSinceLastRecv,
		"matched", matched,
		"expired", expired)
	return true
}

// endPass logs a channel failure that ends the pass of family. What the
// poll accumulated so far is still evaluated.
func (t *TCPSocketTracker) endPass(family uint8, msg string, err error) {
	slog.Warn(msg,
		"network", t.network,
		"family", core.FamilyName(family),
		"error", err)
	metrics.DumpErrorsTotal.WithLabelValues(t.network, core.FamilyName(family)).Inc()
}

// readFamily reads chunks of one dump until it ends.
func (t *TCPSocketTracker) readFamily(ch sockdiag.Channel, now int64) error {
	for {
		chunk, err := ch.Recv()
		if err != nil {
			return err
		}
		more, err := t.consume(chunk, now)
		if err != nil || !more {
			return err
		}
	}
}

// consume decodes every unit of chunk. It returns true when the whole chunk
// was consumed without reaching the end of the dump.
func (t *TCPSocketTracker) consume(chunk []byte, now int64) (bool, error) {
	if len(chunk) < sockdiag.HeaderLen {
		return false, nil
	}
	for len(chunk) > 0 {
		rec, n, err := sockdiag.DecodeNext(chunk)
		switch {
		case errors.Is(err, core.ErrInsufficientData), errors.Is(err, core.ErrDumpDone):
			return false, nil
		case err != nil:
			return false, err
		}
		chunk = chunk[n:]

		if rec.TCPInfo == nil {
			continue
		}
		info := extractSocketInfo(rec, now)
		if !t.rule.Matches(info.Fwmark) {
			continue
		}
		t.agg.Add(info)
	}
	return true, nil
}

// LatestPacketFailPercentage returns the fail percentage of the last poll,
// or -1 when unsupported or too few packets were sent since the last
// received segment.
func (t *TCPSocketTracker) LatestPacketFailPercentage() int {
	if !t.supported {
		return -1
	}
	agg := t.latestAggregate()
	if agg.SentSinceLastRecv < int64(t.cfg.MinPacketsThreshold()) {
		return -1
	}
	return failPercentage(agg)
}

// SentSinceLastRecv returns segments sent since a poll last saw incoming
// segments, or -1 when unsupported.
func (t *TCPSocketTracker) SentSinceLastRecv() int64 {
	if !t.supported {
		return -1
	}
	return t.latestAggregate().SentSinceLastRecv
}

// LatestReceivedCount returns segments received during the last poll, or
// -1 when unsupported.
func (t *TCPSocketTracker) LatestReceivedCount() int64 {
	if !t.supported {
		return -1
	}
	return t.latestAggregate().Received
}

// IsDataStallSuspected evaluates the last poll against the current
// thresholds. Always false when unsupported or idle.
func (t *TCPSocketTracker) IsDataStallSuspected() bool {
	if !t.supported || t.idle.Load() {
		return false
	}
	return Evaluate(t.latestAggregate(), t.cfg).StallSuspected
}

// Signal returns the full evaluation of the last poll, or UnknownSignal when
// unsupported, idle or never polled.
func (t *TCPSocketTracker) Signal() StallSignal {
	if !t.supported || t.idle.Load() {
		return UnknownSignal
	}
	t.mu.RLock()
	agg, polled := t.latest, t.polled
	t.mu.RUnlock()
	if !polled {
		return UnknownSignal
	}
	return Evaluate(agg, t.cfg)
}

// OnIdleChanged implements core.IdleListener.
func (t *TCPSocketTracker) OnIdleChanged(idle bool) {
	if t.idle.Swap(idle) != idle {
		slog.Info("device idle state changed", "network", t.network, "idle", idle)
	}
}

// Quit unregisters the listeners added by NewTCPSocketTracker.
func (t *TCPSocketTracker) Quit() {
	if !t.registered {
		return
	}
	if t.deps.Config != nil {
		t.deps.Config.RemoveListener(t.watcher)
	}
	if t.deps.Idle != nil {
		t.deps.Idle.RemoveListener(t)
	}
	t.registered = false
}

func (t *TCPSocketTracker) latestAggregate() PollAggregate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}
