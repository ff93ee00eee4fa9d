//go:build !baremetal

package radio

import (
	"net"
	"time"

	"github.com/the-lightning-land/stationd/event"
)

const pollInterval = 500 * time.Millisecond

// currentAddr returns the first IPv4 address of iface, if any.
func currentAddr(iface *net.Interface) *event.GotIP {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
			return &event.GotIP{
				Interface: iface.Name,
				IP:        ip4,
				Mask:      ipNet.Mask,
			}
		}
	}

	return nil
}
