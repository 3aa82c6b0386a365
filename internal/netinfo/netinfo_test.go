package netinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPick_SkipsLoopbackDownAndIPv6(t *testing.T) {
	mac, _ := net.ParseMAC("00:11:22:33:44:55")
	ifaces := []net.Interface{
		{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
		{Index: 2, Name: "down0", Flags: 0},
		{Index: 3, Name: "v6only", Flags: net.FlagUp},
		{Index: 4, Name: "eth0", Flags: net.FlagUp, HardwareAddr: mac},
	}
	addrs := map[int][]net.Addr{
		1: {&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)}},
		2: {&net.IPNet{IP: net.ParseIP("10.0.0.9"), Mask: net.CIDRMask(8, 32)}},
		3: {&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}},
		4: {&net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)}},
	}

	got := pick(ifaces, func(i net.Interface) ([]net.Addr, error) { return addrs[i.Index], nil })

	assert.Equal(t, "192.168.1.20", got.ServerIP)
	assert.Equal(t, "00:11:22:33:44:55", got.ServerMAC)
}

func TestPick_NoCandidates(t *testing.T) {
	got := pick(nil, nil)
	assert.Empty(t, got.ServerIP)
	assert.Empty(t, got.ServerMAC)
}

func TestSnapshot_DoesNotPanic(t *testing.T) {
	_ = Snapshot()
}
