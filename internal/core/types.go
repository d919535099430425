// Package core defines core types with zero external dependencies.
package core

import "fmt"

// Address families polled by the tracker, in poll order.
const (
	FamilyIPv4 uint8 = 2  // AF_INET
	FamilyIPv6 uint8 = 10 // AF_INET6
)

// AddressFamilies is the fixed order in which families are dumped.
var AddressFamilies = [...]uint8{FamilyIPv4, FamilyIPv6}

// FamilyName returns "ipv4"/"ipv6" for logging and metric labels.
func FamilyName(family uint8) string {
	switch family {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("af%d", family)
	}
}

// NetworkMarkRule is the fwmark/mask pair that identifies sockets of one
// logical network.
type NetworkMarkRule struct {
	Mask uint32
	Mark uint32
}

// Matches reports whether a socket mark belongs to the network.
func (r NetworkMarkRule) Matches(fwmark uint32) bool {
	return fwmark&r.Mask == r.Mark
}

func (r NetworkMarkRule) String() string {
	return fmt.Sprintf("0x%x/0x%x", r.Mark, r.Mask)
}

// ConfigListener is notified when a configuration namespace changes.
type ConfigListener interface {
	OnPropertiesChanged(namespace string)
}

// IdleListener is notified when the device enters or leaves idle.
type IdleListener interface {
	OnIdleChanged(idle bool)
}
