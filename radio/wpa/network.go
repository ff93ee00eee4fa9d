package wpa

import "github.com/godbus/dbus/v5"

// Network is a network block configured in wpa_supplicant.
type Network struct {
	wpa *Wpa
	obj dbus.BusObject
}

func (n *Network) String() string {
	return string(n.obj.Path())
}

// NetworkArgs are the network block properties passed to AddNetwork,
// named like in wpa_supplicant.conf.
type NetworkArgs map[string]interface{}
