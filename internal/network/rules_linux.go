//go:build linux

package network

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// NewRuleResolver opens a routing netlink handle, inside netnsPath when set.
func NewRuleResolver(tables map[string]TableTarget, netnsPath string) (*RuleResolver, error) {
	var (
		h   *netlink.Handle
		err error
	)
	if netnsPath != "" {
		ns, nsErr := netns.GetFromPath(netnsPath)
		if nsErr != nil {
			return nil, fmt.Errorf("failed to open netns %s: %w", netnsPath, nsErr)
		}
		defer ns.Close()
		h, err = netlink.NewHandleAt(ns)
	} else {
		h, err = netlink.NewHandle()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open routing netlink handle: %w", err)
	}

	return &RuleResolver{tables: tables, rules: h, close: h.Close}, nil
}
