package reporter

import (
	"context"
	"log/slog"
)

// LogReporter writes events to a slog logger.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Name() string { return "log" }

func (r *LogReporter) Report(ctx context.Context, ev Event) error {
	level := slog.LevelInfo
	if ev.Suspected {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "data stall "+ev.State(),
		"network", ev.Network,
		"fail_percentage", ev.FailPercentage,
		"sent", ev.Sent,
		"sent_since_last_recv", ev.SentSinceLastRecv,
		"received", ev.Received,
	)
	return nil
}

func (r *LogReporter) Close() error { return nil }
