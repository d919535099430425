//go:build linux

package sockdiag

import (
	"time"

	"github.com/mdlayher/netlink"
)

// NewConnChannel wraps an existing netlink connection. nltest connections
// cannot take deadlines, so tests pass a zero timeout.
func NewConnChannel(conn *netlink.Conn, timeout time.Duration) Channel {
	return &netlinkChannel{conn: conn, timeout: timeout}
}
