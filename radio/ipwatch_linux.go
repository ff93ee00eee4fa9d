//go:build linux && !baremetal

package radio

import (
	"context"
	"net"
	"syscall"
	"unsafe"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/event"
	"golang.org/x/sys/unix"
)

// waitForAddr blocks until ifname carries an IPv4 address. The kernel
// announces new addresses on the RTMGRP_IPV4_IFADDR netlink group.
func waitForAddr(ctx context.Context, ifname string) (*event.GotIP, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, errors.Errorf("could not open netlink socket: %v", err)
	}
	defer unix.Close(fd)

	err = unix.Bind(fd, &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: unix.RTMGRP_IPV4_IFADDR,
	})
	if err != nil {
		return nil, errors.Errorf("could not bind netlink socket: %v", err)
	}

	// wake up regularly to notice cancellation
	tv := unix.NsecToTimeval(int64(pollInterval))
	err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
	if err != nil {
		return nil, errors.Errorf("could not set receive timeout: %v", err)
	}

	// subscribed first, so an address assigned from here on is not missed
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, errors.Errorf("could not find interface %v: %v", ifname, err)
	}

	if gotIP := currentAddr(iface); gotIP != nil {
		return gotIP, nil
	}

	buf := make([]byte, unix.Getpagesize())

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errors.Errorf("could not read from netlink socket: %v", err)
		}

		msgs, err := syscall.ParseNetlinkMessage(buf[:n])
		if err != nil {
			continue
		}

		for i := range msgs {
			if gotIP := parseNewAddr(&msgs[i], iface); gotIP != nil {
				return gotIP, nil
			}
		}
	}
}

func parseNewAddr(msg *syscall.NetlinkMessage, iface *net.Interface) *event.GotIP {
	if msg.Header.Type != unix.RTM_NEWADDR || len(msg.Data) < unix.SizeofIfAddrmsg {
		return nil
	}

	ifa := (*unix.IfAddrmsg)(unsafe.Pointer(&msg.Data[0]))
	if ifa.Family != unix.AF_INET || int(ifa.Index) != iface.Index {
		return nil
	}

	attrs, err := syscall.ParseNetlinkRouteAttr(msg)
	if err != nil {
		return nil
	}

	for _, attr := range attrs {
		if attr.Attr.Type != unix.IFA_LOCAL && attr.Attr.Type != unix.IFA_ADDRESS {
			continue
		}

		if len(attr.Value) != net.IPv4len {
			continue
		}

		return &event.GotIP{
			Interface: iface.Name,
			IP:        net.IPv4(attr.Value[0], attr.Value[1], attr.Value[2], attr.Value[3]),
			Mask:      net.CIDRMask(int(ifa.Prefixlen), 32),
		}
	}

	return nil
}
