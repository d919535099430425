package tracker

// NetworkStatus is a point-in-time view of one tracker.
type NetworkStatus struct {
	Network           string `json:"network" yaml:"network"`
	Polled            bool   `json:"polled" yaml:"polled"`
	Idle              bool   `json:"idle" yaml:"idle"`
	StallSignal       `yaml:",inline"`
	SentSinceLastRecv int64 `json:"sent_since_last_recv" yaml:"sent_since_last_recv"`
	Received          int64 `json:"received" yaml:"received"`
	MatchedSockets    int   `json:"matched_sockets" yaml:"matched_sockets"`
}

// Status reports the tracker's latest state. Polled is false until a poll
// has completed.
func (t *TCPSocketTracker) Status() NetworkStatus {
	t.mu.RLock()
	polled, matched := t.polled, t.matched
	t.mu.RUnlock()

	return NetworkStatus{
		Network:           t.network,
		Polled:            polled,
		Idle:              t.idle.Load(),
		StallSignal:       t.Signal(),
		SentSinceLastRecv: t.SentSinceLastRecv(),
		Received:          t.LatestReceivedCount(),
		MatchedSockets:    matched,
	}
}
