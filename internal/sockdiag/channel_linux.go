//go:build linux

package sockdiag

import (
	"fmt"
	"time"

	"github.com/mdlayher/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// Kernel opens sock_diag netlink channels.
type Kernel struct {
	cfg KernelConfig
}

// NewKernel returns a Kernel using cfg.
func NewKernel(cfg KernelConfig) *Kernel {
	return &Kernel{cfg: cfg}
}

// Connect dials a NETLINK_INET_DIAG socket.
func (k *Kernel) Connect() (Channel, error) {
	nlCfg := &netlink.Config{}
	if k.cfg.NetNSPath != "" {
		ns, err := netns.GetFromPath(k.cfg.NetNSPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open netns %s: %w", k.cfg.NetNSPath, err)
		}
		// Dial enters the namespace and is done with the handle once it returns.
		defer ns.Close()
		nlCfg.NetNS = int(ns)
	}

	conn, err := netlink.Dial(unix.NETLINK_INET_DIAG, nlCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to dial sock_diag: %w", err)
	}

	if k.cfg.RecvBuffer > 0 {
		if err := conn.SetReadBuffer(k.cfg.RecvBuffer); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set receive buffer: %w", err)
		}
	}

	return &netlinkChannel{conn: conn, timeout: k.cfg.ReadTimeout}, nil
}

type netlinkChannel struct {
	conn    *netlink.Conn
	timeout time.Duration
}

func (c *netlinkChannel) Send(b []byte) error {
	if len(b) < HeaderLen {
		return fmt.Errorf("request too short: %d bytes", len(b))
	}
	h := parseHeader(b)
	msg := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(h.Type),
			Flags: netlink.HeaderFlags(h.Flags),
		},
		Data: b[HeaderLen:],
	}
	if _, err := c.conn.Send(msg); err != nil {
		return fmt.Errorf("failed to send sock_diag request: %w", err)
	}
	return nil
}

// Recv returns the whole dump re-serialized as the kernel wrote it.
// netlink.Conn drains every datagram of a multipart reply and drops the
// trailing NLMSG_DONE, so Recv puts one back to end the caller's pass.
func (c *netlinkChannel) Recv() ([]byte, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	msgs, err := c.conn.Receive()
	if err != nil {
		return nil, fmt.Errorf("failed to receive sock_diag reply: %w", err)
	}

	var buf []byte
	for _, m := range msgs {
		buf = AppendMessage(buf, Header{
			Type:     uint16(m.Header.Type),
			Flags:    uint16(m.Header.Flags),
			Sequence: m.Header.Sequence,
			PID:      m.Header.PID,
		}, m.Data)
	}
	return appendDone(buf), nil
}

func appendDone(buf []byte) []byte {
	return AppendMessage(buf, Header{
		Type:  NlmsgDone,
		Flags: uint16(netlink.Multi),
	}, make([]byte, 4))
}

func (c *netlinkChannel) Close() error {
	return c.conn.Close()
}

// Supported reports whether the running kernel can serve the dumps this
// package decodes.
func Supported() bool {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return false
	}
	return releaseAtLeast(unix.ByteSliceToString(uts.Release[:]), minKernelMajor, minKernelMinor)
}
