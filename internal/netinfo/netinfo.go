// Package netinfo снимает IPv4 и аппаратный адрес сервера для информационной метки сессии.
package netinfo

import (
	"net"

	"github.com/sessiond/internal/model"
)

// Snapshot возвращает адрес первого поднятого не-loopback интерфейса с IPv4.
// Если такого нет — пустое значение.
func Snapshot() model.NetworkInfo {
	ifaces, err := net.Interfaces()
	if err != nil {
		return model.NetworkInfo{}
	}
	return pick(ifaces, func(i net.Interface) ([]net.Addr, error) { return i.Addrs() })
}

func pick(ifaces []net.Interface, addrs func(net.Interface) ([]net.Addr, error)) model.NetworkInfo {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		list, err := addrs(iface)
		if err != nil {
			continue
		}
		for _, a := range list {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
				return model.NetworkInfo{ServerIP: ip4.String(), ServerMAC: iface.HardwareAddr.String()}
			}
		}
	}
	return model.NetworkInfo{}
}
