package tracker

// PollAggregate holds the counters of one poll across both address families.
type PollAggregate struct {
	Sent     int64
	Lost     int64
	Received int64
	// SentSinceLastRecv carries over polls until one sees received segments.
	SentSinceLastRecv int64
	// Neutral is set when a dump pass hit a malformed record; the poll then
	// reports a zero fail percentage while keeping its counters.
	Neutral bool
}

// statAggregator sums per-socket deltas. It keeps the last sample of every
// socket so repeated dumps only count what changed since.
type statAggregator struct {
	history           map[uint64]SocketInfo
	seen              map[uint64]struct{}
	current           PollAggregate
	sentSinceLastRecv int64
}

func newStatAggregator() *statAggregator {
	return &statAggregator{
		history: make(map[uint64]SocketInfo),
		seen:    make(map[uint64]struct{}),
	}
}

// Reset starts a new poll.
func (a *statAggregator) Reset() {
	a.current = PollAggregate{}
	clear(a.seen)
}

// Add folds one socket sample in. A socket seen for the first time
// contributes its full counters.
func (a *statAggregator) Add(info SocketInfo) {
	cur := info.TCPInfo
	sent := int64(cur.SegsOut)
	lost := int64(cur.Lost) + int64(cur.Retransmits)
	received := int64(cur.SegsIn)

	if prev, ok := a.history[info.Cookie]; ok {
		sent -= int64(prev.TCPInfo.SegsOut)
		lost -= int64(prev.TCPInfo.Lost) + int64(prev.TCPInfo.Retransmits)
		received -= int64(prev.TCPInfo.SegsIn)
	}
	a.seen[info.Cookie] = struct{}{}

	a.current.Sent += sent
	a.current.Lost += lost
	a.current.Received += received
	a.history[info.Cookie] = info
}

// MarkNeutral flags the current poll as having hit a malformed record.
func (a *statAggregator) MarkNeutral() {
	a.current.Neutral = true
}

// Finalize closes the poll and returns its aggregate.
func (a *statAggregator) Finalize() PollAggregate {
	if a.current.Received == 0 {
		a.sentSinceLastRecv += a.current.Sent
	} else {
		a.sentSinceLastRecv = 0
	}
	a.current.SentSinceLastRecv = a.sentSinceLastRecv
	return a.current
}

// Expire drops sockets whose last sample is older than before.
func (a *statAggregator) Expire(before int64) int {
	var n int
	for cookie, info := range a.history {
		if info.UpdateTime < before {
			delete(a.history, cookie)
			n++
		}
	}
	return n
}

// Matched returns the number of distinct sockets added since Reset.
func (a *statAggregator) Matched() int {
	return len(a.seen)
}
