// Package tracker polls the kernel's TCP socket diagnostics for one network
// and turns per-socket loss counters into a data stall signal.
package tracker

import (
	"time"

	"firestige.xyz/stallwatch/internal/core"
	"firestige.xyz/stallwatch/internal/sockdiag"
)

// Kernel opens sock_diag channels.
type Kernel interface {
	Connect() (sockdiag.Channel, error)
}

// MarkResolver maps a network name to the fwmark rule of its sockets.
type MarkResolver interface {
	Resolve(network string) (core.NetworkMarkRule, error)
}

// ConfigProvider serves live integer settings.
type ConfigProvider interface {
	GetInt(namespace, key string, def int) int
	AddListener(namespace string, l core.ConfigListener)
	RemoveListener(l core.ConfigListener)
}

// IdleSignal reports whether the device is idle.
type IdleSignal interface {
	IsIdle() bool
	AddListener(l core.IdleListener)
	RemoveListener(l core.IdleListener)
}

// Dependencies are the collaborators of a TCPSocketTracker.
type Dependencies struct {
	Kernel   Kernel
	Resolver MarkResolver
	Config   ConfigProvider
	Idle     IdleSignal

	// Supported reports whether tcp_info parsing works on this host.
	// Nil means sockdiag.Supported.
	Supported func() bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Dependencies) supported() bool {
	if d.Supported == nil {
		return sockdiag.Supported()
	}
	return d.Supported()
}

func (d *Dependencies) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}
