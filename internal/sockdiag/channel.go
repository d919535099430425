package sockdiag

import "time"

// Channel is one open NETLINK_INET_DIAG socket.
type Channel interface {
	// Send writes one encoded request.
	Send(b []byte) error
	// Recv blocks for the next datagram and returns its netlink units.
	Recv() ([]byte, error)
	Close() error
}

// KernelConfig configures kernel channels.
type KernelConfig struct {
	// NetNSPath selects a network namespace (e.g. /var/run/netns/blue).
	// Empty means the namespace of the calling thread.
	NetNSPath string
	// ReadTimeout bounds each Recv. Zero blocks forever.
	ReadTimeout time.Duration
	// RecvBuffer sets SO_RCVBUF when positive.
	RecvBuffer int
}
