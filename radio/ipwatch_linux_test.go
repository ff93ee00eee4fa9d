//go:build linux && !baremetal

package radio

import (
	"encoding/binary"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var testIface = &net.Interface{Index: 7, Name: "wlan0"}

// newAddrMessage builds an address announcement the way the kernel encodes
// it: an ifaddrmsg header followed by a single route attribute.
func newAddrMessage(msgType uint16, family uint8, index uint32, attrType uint16, value []byte) *syscall.NetlinkMessage {
	data := make([]byte, unix.SizeofIfAddrmsg)
	data[0] = family
	data[1] = 24 // prefix length
	binary.NativeEndian.PutUint32(data[4:8], index)

	attr := make([]byte, unix.SizeofRtAttr)
	binary.NativeEndian.PutUint16(attr[0:2], uint16(unix.SizeofRtAttr+len(value)))
	binary.NativeEndian.PutUint16(attr[2:4], attrType)
	attr = append(attr, value...)
	for len(attr)%unix.NLA_ALIGNTO != 0 {
		attr = append(attr, 0)
	}

	return &syscall.NetlinkMessage{
		Header: syscall.NlMsghdr{Type: msgType},
		Data:   append(data, attr...),
	}
}

func TestParseNewAddr(t *testing.T) {
	for _, attrType := range []uint16{unix.IFA_LOCAL, unix.IFA_ADDRESS} {
		msg := newAddrMessage(unix.RTM_NEWADDR, unix.AF_INET, 7, attrType, []byte{192, 168, 4, 2})

		gotIP := parseNewAddr(msg, testIface)
		require.NotNil(t, gotIP)
		require.Equal(t, "wlan0", gotIP.Interface)
		require.Equal(t, "192.168.4.2", gotIP.IP.String())
		require.Equal(t, "ffffff00", gotIP.Mask.String())
	}
}

func TestParseNewAddrIgnoresOtherMessages(t *testing.T) {
	v4 := []byte{192, 168, 4, 2}

	for name, msg := range map[string]*syscall.NetlinkMessage{
		"other interface": newAddrMessage(unix.RTM_NEWADDR, unix.AF_INET, 8, unix.IFA_LOCAL, v4),
		"ipv6":            newAddrMessage(unix.RTM_NEWADDR, unix.AF_INET6, 7, unix.IFA_ADDRESS, net.ParseIP("fe80::1").To16()),
		"removed address": newAddrMessage(unix.RTM_DELADDR, unix.AF_INET, 7, unix.IFA_LOCAL, v4),
		"label only":      newAddrMessage(unix.RTM_NEWADDR, unix.AF_INET, 7, unix.IFA_LABEL, []byte("wlan0")),
		"truncated": {
			Header: syscall.NlMsghdr{Type: unix.RTM_NEWADDR},
			Data:   []byte{unix.AF_INET, 24, 0},
		},
	} {
		require.Nil(t, parseNewAddr(msg, testIface), name)
	}
}
