package probe

import (
	"context"
	"testing"

	gnet "github.com/shirou/gopsutil/v3/net"
)

func TestPickAddr(t *testing.T) {
	t.Parallel()

	ifaces := gnet.InterfaceStatList{
		{
			Name:  "eth0",
			Flags: []string{"up", "broadcast"},
			Addrs: gnet.InterfaceAddrList{{Addr: "fe80::1/64"}, {Addr: "192.168.1.10/24"}},
		},
		{
			Name:  "wlan0",
			Flags: []string{"broadcast"},
			Addrs: gnet.InterfaceAddrList{{Addr: "10.0.0.2/24"}},
		},
		{
			Name:  "wg0",
			Flags: []string{"up"},
			Addrs: gnet.InterfaceAddrList{{Addr: "fd00::2/64"}},
		},
	}

	addr, err := pickAddr(ifaces, "eth0")
	if err != nil {
		t.Fatalf("eth0: %v", err)
	}
	if addr.String() != "192.168.1.10" {
		t.Fatalf("addr=%s", addr)
	}

	for _, name := range []string{"wlan0", "wg0", "missing0"} {
		_, err := pickAddr(ifaces, name)
		if FailureOf(err) != FailureResolution {
			t.Fatalf("%s: failure=%q err=%v", name, FailureOf(err), err)
		}
	}
}

func TestStaticResolver(t *testing.T) {
	t.Parallel()

	r := StaticResolver{"lo": mustAddr("127.0.0.1")}
	if _, err := r.Resolve(context.Background(), "lo"); err != nil {
		t.Fatalf("lo: %v", err)
	}
	if _, err := r.Resolve(context.Background(), "eth9"); FailureOf(err) != FailureResolution {
		t.Fatalf("err=%v", err)
	}
}
