// Package reporter publishes data stall transitions.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/stallwatch/internal/config"
	"firestige.xyz/stallwatch/internal/metrics"
)

// Event is one stall state transition of a network.
type Event struct {
	Node              string            `json:"node"`
	NodeIP            string            `json:"node_ip,omitempty"`
	Tags              map[string]string `json:"tags,omitempty"`
	Network           string            `json:"network"`
	Suspected         bool              `json:"suspected"`
	FailPercentage    int               `json:"fail_percentage"`
	Sent              int64             `json:"sent"`
	SentSinceLastRecv int64             `json:"sent_since_last_recv"`
	Received          int64             `json:"received"`
	Timestamp         time.Time         `json:"timestamp"`
}

// State is the transition label: "suspected" or "cleared".
func (e Event) State() string {
	if e.Suspected {
		return "suspected"
	}
	return "cleared"
}

// Reporter publishes events.
type Reporter interface {
	Name() string
	Report(ctx context.Context, ev Event) error
	Close() error
}

// Multi fans an event out to every reporter. A failing reporter does not
// stop the others.
type Multi []Reporter

func (m Multi) Name() string { return "multi" }

// Report implements Reporter. The returned error joins all failures.
func (m Multi) Report(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, ev); err != nil {
			metrics.ReporterErrorsTotal.WithLabelValues(r.Name(), "report").Inc()
			slog.Warn("reporter failed", "reporter", r.Name(), "network", ev.Network, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close implements Reporter.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			metrics.ReporterErrorsTotal.WithLabelValues(r.Name(), "close").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the enabled reporters.
func FromConfig(cfg config.ReportersConfig) (Multi, error) {
	var out Multi
	if cfg.Log.Enabled {
		out = append(out, NewLogReporter(slog.Default()))
	}
	if cfg.Kafka.Enabled {
		k, err := NewKafkaReporter(cfg.Kafka)
		if err != nil {
			_ = out.Close()
			metrics.ReporterErrorsTotal.WithLabelValues("kafka", "init").Inc()
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
