package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestNetworkMarkRuleMatches(t *testing.T) {
	tests := []struct {
		name   string
		rule   NetworkMarkRule
		fwmark uint32
		want   bool
	}{
		{"exact netid", NetworkMarkRule{Mask: 0xffff, Mark: 0x0a85}, 0x000c0a85, true},
		{"other netid", NetworkMarkRule{Mask: 0xffff, Mark: 0x1a85}, 0x000c0a85, false},
		{"zero mask matches zero mark", NetworkMarkRule{}, 0xdeadbeef, true},
		{"full mask", NetworkMarkRule{Mask: 0xffffffff, Mark: 0x64}, 0x64, true},
		{"unmarked socket", NetworkMarkRule{Mask: 0xffff, Mark: 0x64}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.fwmark); got != tt.want {
				t.Errorf("Matches(0x%x) = %v, want %v", tt.fwmark, got, tt.want)
			}
		})
	}
}

func TestNetworkMarkRuleString(t *testing.T) {
	r := NetworkMarkRule{Mask: 0xffff, Mark: 0xa85}
	if got := r.String(); got != "0xa85/0xffff" {
		t.Errorf("String() = %q", got)
	}
}

func TestFamilyName(t *testing.T) {
	if FamilyName(FamilyIPv4) != "ipv4" {
		t.Errorf("unexpected name for AF_INET: %s", FamilyName(FamilyIPv4))
	}
	if FamilyName(FamilyIPv6) != "ipv6" {
		t.Errorf("unexpected name for AF_INET6: %s", FamilyName(FamilyIPv6))
	}
	if FamilyName(1) != "af1" {
		t.Errorf("unexpected name for AF_UNIX: %s", FamilyName(1))
	}
}

func TestAddressFamilyOrder(t *testing.T) {
	if len(AddressFamilies) != 2 || AddressFamilies[0] != FamilyIPv4 || AddressFamilies[1] != FamilyIPv6 {
		t.Fatalf("unexpected family order: %v", AddressFamilies)
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	sentinels := []error{
		ErrInsufficientData, ErrDumpDone, ErrMalformed,
		ErrNetworkNotFound, ErrUnsupported, ErrReporterInitFailed, ErrConfigInvalid,
	}
	for _, s := range sentinels {
		wrapped := fmt.Errorf("context: %w", s)
		if !errors.Is(wrapped, s) {
			t.Errorf("errors.Is failed for %v", s)
		}
	}
}
