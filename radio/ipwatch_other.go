//go:build !linux && !baremetal

package radio

import (
	"context"
	"net"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/event"
)

// waitForAddr polls ifname until it carries an IPv4 address.
func waitForAddr(ctx context.Context, ifname string) (*event.GotIP, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		iface, err := net.InterfaceByName(ifname)
		if err != nil {
			return nil, errors.Errorf("could not find interface %v: %v", ifname, err)
		}

		if gotIP := currentAddr(iface); gotIP != nil {
			return gotIP, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
