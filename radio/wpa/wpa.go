package wpa

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

const (
	serviceName     = "fi.w1.wpa_supplicant1"
	servicePath     = "/fi/w1/wpa_supplicant1"
	interfaceIface  = serviceName + ".Interface"
	bssIface        = serviceName + ".BSS"
	propertiesIface = "org.freedesktop.DBus.Properties"
)

// Wpa is a client of wpa_supplicant's D-Bus API.
type Wpa struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func New() *Wpa {
	return &Wpa{}
}

// Start opens a private connection to the system bus.
func (w *Wpa) Start() error {
	if w.conn != nil {
		return nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return errors.Errorf("could not connect to system bus: %v", err)
	}

	w.conn = conn
	w.obj = conn.Object(serviceName, servicePath)

	return nil
}

func (w *Wpa) Stop() error {
	if w.conn == nil {
		return nil
	}

	err := w.conn.Close()
	w.conn = nil
	w.obj = nil
	if err != nil {
		return errors.Errorf("could not close system bus connection: %v", err)
	}

	return nil
}

// GetInterface looks up the interface wpa_supplicant manages for ifname.
func (w *Wpa) GetInterface(ifname string) (*Interface, error) {
	if w.conn == nil {
		return nil, errors.New("wpa client is not started")
	}

	call := w.obj.Call(serviceName+".GetInterface", 0, ifname)
	if call.Err != nil {
		return nil, errors.Errorf("could not get interface %v: %v", ifname, call.Err)
	}

	var objPath dbus.ObjectPath
	err := call.Store(&objPath)
	if err != nil {
		return nil, errors.Errorf("could not store value: %v", err)
	}

	return &Interface{
		wpa:    w,
		ifname: ifname,
		obj:    w.conn.Object(serviceName, objPath),
	}, nil
}
