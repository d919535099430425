package tracker

import (
	"math"
	"sync/atomic"
)

// Defaults for StallConfig.
const (
	DefaultFailPercentageThreshold = 80
	DefaultMinPacketsThreshold     = 10
)

// StallConfig holds the live detection thresholds. Safe for concurrent use.
type StallConfig struct {
	failThreshold atomic.Int32
	minPackets    atomic.Int32
}

// NewStallConfig returns a StallConfig with the default thresholds.
func NewStallConfig() *StallConfig {
	c := &StallConfig{}
	c.failThreshold.Store(DefaultFailPercentageThreshold)
	c.minPackets.Store(DefaultMinPacketsThreshold)
	return c
}

func (c *StallConfig) FailPercentageThreshold() int { return int(c.failThreshold.Load()) }

func (c *StallConfig) SetFailPercentageThreshold(v int) { c.failThreshold.Store(int32(v)) }

func (c *StallConfig) MinPacketsThreshold() int { return int(c.minPackets.Load()) }

func (c *StallConfig) SetMinPacketsThreshold(v int) { c.minPackets.Store(int32(v)) }

// StallSignal is the outcome of evaluating one poll.
type StallSignal struct {
	FailPercentage int   `json:"fail_percentage" yaml:"fail_percentage"`
	Sent           int64 `json:"sent" yaml:"sent"`
	StallSuspected bool  `json:"stall_suspected" yaml:"stall_suspected"`
}

// UnknownSignal is reported when no poll has completed.
var UnknownSignal = StallSignal{FailPercentage: -1, Sent: -1}

// Evaluate computes the signal of agg under the current thresholds. It reads
// cfg on every call, so threshold changes apply to cached aggregates.
func Evaluate(agg PollAggregate, cfg *StallConfig) StallSignal {
	sig := StallSignal{
		FailPercentage: failPercentage(agg),
		Sent:           agg.SentSinceLastRecv,
	}
	if agg.Sent <= 0 || agg.Neutral {
		return sig
	}
	sig.StallSuspected = sig.FailPercentage >= cfg.FailPercentageThreshold() &&
		agg.SentSinceLastRecv >= int64(cfg.MinPacketsThreshold())
	return sig
}

// failPercentage is round(100*lost/sent), or 0 without anything sent.
func failPercentage(agg PollAggregate) int {
	if agg.Sent <= 0 || agg.Neutral {
		return 0
	}
	return int(math.Round(float64(agg.Lost) * 100 / float64(agg.Sent)))
}
