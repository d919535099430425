// Package network resolves tracked network names to the fwmark rule carried
// by their sockets.
package network

import (
	"errors"
	"fmt"

	"firestige.xyz/stallwatch/internal/config"
	"firestige.xyz/stallwatch/internal/core"
)

// Resolver maps a network name to its fwmark rule.
type Resolver interface {
	Resolve(name string) (core.NetworkMarkRule, error)
}

// StaticResolver serves rules configured by mark and mask.
type StaticResolver map[string]core.NetworkMarkRule

// Resolve implements Resolver.
func (r StaticResolver) Resolve(name string) (core.NetworkMarkRule, error) {
	rule, ok := r[name]
	if !ok {
		return core.NetworkMarkRule{}, fmt.Errorf("%w: %s", core.ErrNetworkNotFound, name)
	}
	return rule, nil
}

// ChainResolver asks each resolver in turn. Only ErrNetworkNotFound moves on
// to the next one; any other error is returned.
type ChainResolver []Resolver

// Resolve implements Resolver.
func (c ChainResolver) Resolve(name string) (core.NetworkMarkRule, error) {
	for _, r := range c {
		rule, err := r.Resolve(name)
		if err == nil {
			return rule, nil
		}
		if !errors.Is(err, core.ErrNetworkNotFound) {
			return core.NetworkMarkRule{}, err
		}
	}
	return core.NetworkMarkRule{}, fmt.Errorf("%w: %s", core.ErrNetworkNotFound, name)
}

// TableTarget selects the fwmark rule pointing at a routing table.
type TableTarget struct {
	Table int
	// Mask overrides the rule's mask when non-zero.
	Mask uint32
}

// FromConfig builds the resolver for networks. Rules for table based
// networks are read from the kernel in netnsPath on every Resolve; the
// returned close func releases the netlink handle.
func FromConfig(networks []config.NetworkConfig, netnsPath string) (Resolver, func() error, error) {
	static := StaticResolver{}
	tables := map[string]TableTarget{}
	for _, n := range networks {
		if n.Static() {
			static[n.Name] = core.NetworkMarkRule{Mask: n.Mask, Mark: n.Mark}
			continue
		}
		tables[n.Name] = TableTarget{Table: n.Table, Mask: n.Mask}
	}

	if len(tables) == 0 {
		return static, func() error { return nil }, nil
	}

	rules, err := NewRuleResolver(tables, netnsPath)
	if err != nil {
		return nil, nil, err
	}
	return ChainResolver{static, rules}, rules.Close, nil
}
