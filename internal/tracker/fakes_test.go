package tracker

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"firestige.xyz/stallwatch/internal/core"
	"firestige.xyz/stallwatch/internal/sockdiag"
)

// fakeChannel replays queued chunks; an exhausted queue reads as empty, or
// fails with drainErr when set.
type fakeChannel struct {
	chunks   [][]byte
	sent     [][]byte
	recvs    int
	closed   bool
	err      error
	drainErr error
	// sendErr fails every Send after the first sendOK ones.
	sendErr error
	sendOK  int
}

func (c *fakeChannel) Send(b []byte) error {
	if c.sendErr != nil && len(c.sent) >= c.sendOK {
		return c.sendErr
	}
	c.sent = append(c.sent, b)
	return nil
}

func (c *fakeChannel) Recv() ([]byte, error) {
	c.recvs++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.chunks) == 0 {
		return nil, c.drainErr
	}
	chunk := c.chunks[0]
	c.chunks = c.chunks[1:]
	return chunk, nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

// fakeKernel hands out one channel for every poll.
type fakeKernel struct {
	ch       *fakeChannel
	connects int
	recvs    int
	err      error
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{ch: &fakeChannel{}}
}

// queue sets the chunks returned by the next poll.
func (k *fakeKernel) queue(chunks ...[]byte) {
	k.recvs += k.ch.recvs
	k.ch = &fakeChannel{chunks: chunks}
}

// totalRecvs counts Recv calls over all polls.
func (k *fakeKernel) totalRecvs() int {
	return k.recvs + k.ch.recvs
}

func (k *fakeKernel) Connect() (sockdiag.Channel, error) {
	k.connects++
	if k.err != nil {
		return nil, k.err
	}
	return k.ch, nil
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(network string) (core.NetworkMarkRule, error) {
	args := m.Called(network)
	return args.Get(0).(core.NetworkMarkRule), args.Error(1)
}

type fakeConfig struct {
	mu        sync.Mutex
	values    map[string]int
	listeners []core.ConfigListener
	removed   int
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{values: make(map[string]int)}
}

func (c *fakeConfig) set(key string, v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

func (c *fakeConfig) GetInt(namespace, key string, def int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

func (c *fakeConfig) AddListener(_ string, l core.ConfigListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *fakeConfig) RemoveListener(l core.ConfigListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed++
	for i, x := range c.listeners {
		if x == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *fakeConfig) notify() {
	c.mu.Lock()
	ls := append([]core.ConfigListener(nil), c.listeners...)
	c.mu.Unlock()
	for _, l := range ls {
		l.OnPropertiesChanged(NamespaceConnectivity)
	}
}

type fakeIdle struct {
	idle      bool
	listeners []core.IdleListener
	removed   int
}

func (f *fakeIdle) IsIdle() bool { return f.idle }

func (f *fakeIdle) AddListener(l core.IdleListener) { f.listeners = append(f.listeners, l) }

func (f *fakeIdle) RemoveListener(core.IdleListener) { f.removed++ }

func (f *fakeIdle) set(idle bool) {
	f.idle = idle
	for _, l := range f.listeners {
		l.OnIdleChanged(idle)
	}
}
