package network

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vishvananda/netlink"

	"firestige.xyz/stallwatch/internal/core"
)

// ruleLister is the part of *netlink.Handle used here.
type ruleLister interface {
	RuleList(family int) ([]netlink.Rule, error)
}

// RuleResolver finds the fwmark of a network from the policy routing rule
// that sends marked traffic to the network's table (ip rule ... fwmark M/K
// lookup T).
type RuleResolver struct {
	tables map[string]TableTarget
	rules  ruleLister
	close  func()
}

// Resolve implements Resolver. Among matching rules the one with the lowest
// priority wins, IPv4 rules before IPv6.
func (r *RuleResolver) Resolve(name string) (core.NetworkMarkRule, error) {
	target, ok := r.tables[name]
	if !ok {
		return core.NetworkMarkRule{}, fmt.Errorf("%w: %s", core.ErrNetworkNotFound, name)
	}

	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		rules, err := r.rules.RuleList(family)
		if err != nil {
			return core.NetworkMarkRule{}, fmt.Errorf("list routing rules: %w", err)
		}
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

		for _, rule := range rules {
			if rule.Table != target.Table || rule.Mark == 0 {
				continue
			}
			mask := ^uint32(0)
			if rule.Mask != nil {
				mask = *rule.Mask
			}
			if target.Mask != 0 {
				mask = target.Mask
			}
			resolved := core.NetworkMarkRule{Mask: mask, Mark: uint32(rule.Mark) & mask}
			slog.Debug("resolved network mark from routing rule",
				"network", name,
				"table", target.Table,
				"priority", rule.Priority,
				"rule", resolved.String())
			return resolved, nil
		}
	}

	return core.NetworkMarkRule{}, fmt.Errorf("%w: %s (no fwmark rule for table %d)",
		core.ErrNetworkNotFound, name, target.Table)
}

// Close releases the netlink handle.
func (r *RuleResolver) Close() error {
	if r.close != nil {
		r.close()
	}
	return nil
}
