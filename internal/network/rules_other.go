//go:build !linux

package network

import "errors"

// NewRuleResolver fails: routing rules are read over Linux netlink.
func NewRuleResolver(map[string]TableTarget, string) (*RuleResolver, error) {
	return nil, errors.New("routing rule lookup is only available on linux")
}
