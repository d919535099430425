package network

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"firestige.xyz/stallwatch/internal/config"
	"firestige.xyz/stallwatch/internal/core"
)

type mockRuleLister struct {
	mock.Mock
}

func (m *mockRuleLister) RuleList(family int) ([]netlink.Rule, error) {
	args := m.Called(family)
	return args.Get(0).([]netlink.Rule), args.Error(1)
}

func maskPtr(v uint32) *uint32 { return &v }

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"wlan0": {Mask: 0xffff, Mark: 0x0A85}}

	rule, err := r.Resolve("wlan0")
	require.NoError(t, err)
	assert.Equal(t, core.NetworkMarkRule{Mask: 0xffff, Mark: 0x0A85}, rule)

	_, err = r.Resolve("rmnet0")
	assert.ErrorIs(t, err, core.ErrNetworkNotFound)
}

func TestRuleResolver(t *testing.T) {
	tests := []struct {
		name    string
		target  TableTarget
		v4      []netlink.Rule
		v6      []netlink.Rule
		want    core.NetworkMarkRule
		wantErr error
	}{
		{
			name:   "rule mask",
			target: TableTarget{Table: 100},
			v4: []netlink.Rule{
				{Priority: 0, Table: 255},
				{Priority: 13000, Table: 100, Mark: 0x10064, Mask: maskPtr(0x1ffff)},
			},
			want: core.NetworkMarkRule{Mask: 0x1ffff, Mark: 0x10064},
		},
		{
			name:   "lowest priority wins",
			target: TableTarget{Table: 100},
			v4: []netlink.Rule{
				{Priority: 17000, Table: 100, Mark: 0x2, Mask: maskPtr(0xff)},
				{Priority: 13000, Table: 100, Mark: 0x1, Mask: maskPtr(0xff)},
			},
			want: core.NetworkMarkRule{Mask: 0xff, Mark: 0x1},
		},
		{
			name:   "configured mask overrides",
			target: TableTarget{Table: 100, Mask: 0xffff},
			v4: []netlink.Rule{
				{Priority: 13000, Table: 100, Mark: 0x10064, Mask: maskPtr(0x1ffff)},
			},
			want: core.NetworkMarkRule{Mask: 0xffff, Mark: 0x64},
		},
		{
			name:   "no mask means exact match",
			target: TableTarget{Table: 100},
			v4: []netlink.Rule{
				{Priority: 13000, Table: 100, Mark: 0x64},
			},
			want: core.NetworkMarkRule{Mask: 0xffffffff, Mark: 0x64},
		},
		{
			name:   "ipv6 only",
			target: TableTarget{Table: 100},
			v4:     []netlink.Rule{{Priority: 0, Table: 255}},
			v6: []netlink.Rule{
				{Priority: 13000, Table: 100, Mark: 0x64, Mask: maskPtr(0xffff)},
			},
			want: core.NetworkMarkRule{Mask: 0xffff, Mark: 0x64},
		},
		{
			name:    "rule without mark skipped",
			target:  TableTarget{Table: 100},
			v4:      []netlink.Rule{{Priority: 1000, Table: 100}},
			wantErr: core.ErrNetworkNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := new(mockRuleLister)
			lister.On("RuleList", netlink.FAMILY_V4).Return(tt.v4, nil).Maybe()
			lister.On("RuleList", netlink.FAMILY_V6).Return(tt.v6, nil).Maybe()

			r := &RuleResolver{tables: map[string]TableTarget{"vpn": tt.target}, rules: lister}
			got, err := r.Resolve("vpn")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleResolver_UnknownNetwork(t *testing.T) {
	lister := new(mockRuleLister)
	r := &RuleResolver{tables: map[string]TableTarget{}, rules: lister}

	_, err := r.Resolve("vpn")
	assert.ErrorIs(t, err, core.ErrNetworkNotFound)
	lister.AssertNotCalled(t, "RuleList", mock.Anything)
}

func TestRuleResolver_ListError(t *testing.T) {
	lister := new(mockRuleLister)
	lister.On("RuleList", netlink.FAMILY_V4).Return([]netlink.Rule(nil), errors.New("permission denied"))

	r := &RuleResolver{tables: map[string]TableTarget{"vpn": {Table: 100}}, rules: lister}
	_, err := r.Resolve("vpn")
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrNetworkNotFound)
}

func TestRuleResolver_Close(t *testing.T) {
	closed := 0
	r := &RuleResolver{close: func() { closed++ }}
	assert.NoError(t, r.Close())
	assert.Equal(t, 1, closed)
}

type resolverFunc func(string) (core.NetworkMarkRule, error)

func (f resolverFunc) Resolve(name string) (core.NetworkMarkRule, error) { return f(name) }

func TestChainResolver(t *testing.T) {
	boom := errors.New("boom")
	chain := ChainResolver{
		StaticResolver{"wlan0": {Mask: 0xffff, Mark: 0x0A85}},
		resolverFunc(func(name string) (core.NetworkMarkRule, error) {
			switch name {
			case "vpn":
				return core.NetworkMarkRule{Mask: 0xff, Mark: 0x64}, nil
			case "broken":
				return core.NetworkMarkRule{}, boom
			}
			return core.NetworkMarkRule{}, core.ErrNetworkNotFound
		}),
	}

	rule, err := chain.Resolve("wlan0")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0A85), rule.Mark)

	rule, err = chain.Resolve("vpn")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x64), rule.Mark)

	_, err = chain.Resolve("broken")
	assert.ErrorIs(t, err, boom)

	_, err = chain.Resolve("rmnet0")
	assert.ErrorIs(t, err, core.ErrNetworkNotFound)
}

func TestFromConfig_StaticOnly(t *testing.T) {
	r, closeFn, err := FromConfig([]config.NetworkConfig{
		{Name: "wlan0", Mark: 0x0A85, Mask: 0xffff},
	}, "")
	require.NoError(t, err)
	defer closeFn()

	rule, err := r.Resolve("wlan0")
	require.NoError(t, err)
	assert.Equal(t, core.NetworkMarkRule{Mask: 0xffff, Mark: 0x0A85}, rule)
	assert.True(t, rule.Matches(0x00C0A85))
}
