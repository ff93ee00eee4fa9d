package wpa

import (
	"net"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

type BSS struct {
	obj dbus.BusObject
}

func (b *BSS) String() string {
	return string(b.obj.Path())
}

type Bss struct {
	Ssid  string
	Bssid string
}

func (b *BSS) GetAll() (*Bss, error) {
	call := b.obj.Call(propertiesIface+".GetAll", 0, bssIface)
	if call.Err != nil {
		return nil, errors.Errorf("could not get all properties: %v", call.Err)
	}

	var props map[string]dbus.Variant
	err := call.Store(&props)
	if err != nil {
		return nil, errors.Errorf("could not convert output: %v", err)
	}

	return parseBss(props)
}

func parseBss(props map[string]dbus.Variant) (*Bss, error) {
	bss := Bss{}

	val, ok := props["SSID"]
	if !ok {
		return nil, errors.Errorf("mandatory property SSID was missing")
	}

	ssid, ok := val.Value().([]byte)
	if !ok {
		return nil, errors.Errorf("could not convert SSID to string: %v", val)
	}

	bss.Ssid = string(ssid)

	val, ok = props["BSSID"]
	if !ok {
		return nil, errors.Errorf("mandatory property BSSID was missing")
	}

	bssid, ok := val.Value().([]byte)
	if !ok {
		return nil, errors.Errorf("could not convert BSSID to string: %v", val)
	}

	bss.Bssid = net.HardwareAddr(bssid).String()

	return &bss, nil
}
