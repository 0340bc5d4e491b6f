package probe

import (
	"context"
	"fmt"
	"net/netip"

	gnet "github.com/shirou/gopsutil/v3/net"
)

// Resolver находит локальный адрес интерфейса в момент выполнения пробы
type Resolver interface {
	Resolve(ctx context.Context, iface string) (netip.Addr, error)
}

// InterfaceResolver берет адреса интерфейсов из системы через gopsutil
type InterfaceResolver struct{}

// Resolve возвращает первый IPv4 адрес интерфейса
func (InterfaceResolver) Resolve(ctx context.Context, iface string) (netip.Addr, error) {
	ifaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		return netip.Addr{}, resolutionError(iface, fmt.Errorf("failed to list interfaces: %w", err))
	}
	return pickAddr(ifaces, iface)
}

func pickAddr(ifaces gnet.InterfaceStatList, name string) (netip.Addr, error) {
	for _, ifc := range ifaces {
		if ifc.Name != name {
			continue
		}
		if !hasFlag(ifc.Flags, "up") {
			return netip.Addr{}, resolutionError(name, fmt.Errorf("interface is down"))
		}
		for _, a := range ifc.Addrs {
			prefix, err := netip.ParsePrefix(a.Addr)
			if err != nil {
				continue
			}
			if addr := prefix.Addr(); addr.Is4() {
				return addr, nil
			}
		}
		return netip.Addr{}, resolutionError(name, fmt.Errorf("no IPv4 address assigned"))
	}
	return netip.Addr{}, resolutionError(name, fmt.Errorf("interface not found"))
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// StaticResolver фиксированное сопоставление интерфейсов и адресов
type StaticResolver map[string]netip.Addr

// Resolve возвращает адрес из таблицы
func (s StaticResolver) Resolve(_ context.Context, iface string) (netip.Addr, error) {
	addr, ok := s[iface]
	if !ok {
		return netip.Addr{}, resolutionError(iface, fmt.Errorf("no IPv4 address assigned"))
	}
	return addr, nil
}
