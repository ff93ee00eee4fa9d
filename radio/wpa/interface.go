package wpa

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

// Interface states reported by wpa_supplicant
const (
	StateDisconnected  = "disconnected"
	StateInactive      = "inactive"
	StateScanning      = "scanning"
	StateAssociating   = "associating"
	StateAssociated    = "associated"
	State4WayHandshake = "4way_handshake"
	StateCompleted     = "completed"
)

type Interface struct {
	wpa    *Wpa
	ifname string
	obj    dbus.BusObject
}

func (i *Interface) Ifname() string {
	return i.ifname
}

func (i *Interface) Scan() error {
	call := i.obj.Call(interfaceIface+".Scan", 0, map[string]interface{}{
		"Type": "active",
	})
	if call.Err != nil {
		return errors.Errorf("could not scan: %v", call.Err)
	}

	return nil
}

// signalSubscription forwards signals of one member emitted by the
// interface object until it is cancelled.
type signalSubscription struct {
	iface   *Interface
	member  string
	signals chan *dbus.Signal
	done    chan struct{}
	once    sync.Once
}

func (i *Interface) subscribe(member string) (*signalSubscription, error) {
	sub := &signalSubscription{
		iface:   i,
		member:  member,
		signals: make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
	}

	call := i.wpa.conn.BusObject().AddMatchSignal(interfaceIface, member, dbus.WithMatchObjectPath(i.obj.Path()))
	if call.Err != nil {
		return nil, errors.Errorf("could not add signal %v: %v", member, call.Err)
	}

	i.wpa.conn.Signal(sub.signals)

	return sub, nil
}

// next returns the next matching signal or false once cancelled.
func (s *signalSubscription) next() (*dbus.Signal, bool) {
	for {
		select {
		case signal := <-s.signals:
			if signal.Name == interfaceIface+"."+s.member && signal.Path == s.iface.obj.Path() {
				return signal, true
			}
		case <-s.done:
			return nil, false
		}
	}
}

func (s *signalSubscription) cancel() {
	s.once.Do(func() {
		s.iface.wpa.conn.RemoveSignal(s.signals)

		_ = s.iface.wpa.conn.BusObject().RemoveMatchSignal(interfaceIface, s.member, dbus.WithMatchObjectPath(s.iface.obj.Path()))

		close(s.done)
	})
}

type BSSAddedClient struct {
	BSSAdded <-chan *BSS
	Cancel   func()
}

func (i *Interface) BSSAdded() (*BSSAddedClient, error) {
	sub, err := i.subscribe("BSSAdded")
	if err != nil {
		return nil, err
	}

	bssChan := make(chan *BSS)

	go func() {
		defer close(bssChan)

		for {
			signal, ok := sub.next()
			if !ok {
				return
			}

			path, ok := signal.Body[0].(dbus.ObjectPath)
			if !ok {
				continue
			}

			select {
			case bssChan <- &BSS{obj: i.wpa.conn.Object(serviceName, path)}:
			case <-sub.done:
				return
			}
		}
	}()

	return &BSSAddedClient{
		BSSAdded: bssChan,
		Cancel:   sub.cancel,
	}, nil
}

type ScanDoneClient struct {
	ScanDone <-chan bool
	Cancel   func()
}

func (i *Interface) ScanDone() (*ScanDoneClient, error) {
	sub, err := i.subscribe("ScanDone")
	if err != nil {
		return nil, err
	}

	doneChan := make(chan bool)

	go func() {
		defer close(doneChan)

		for {
			signal, ok := sub.next()
			if !ok {
				return
			}

			success, ok := signal.Body[0].(bool)
			if !ok {
				continue
			}

			select {
			case doneChan <- success:
			case <-sub.done:
				return
			}
		}
	}()

	return &ScanDoneClient{
		ScanDone: doneChan,
		Cancel:   sub.cancel,
	}, nil
}

type StateChangedClient struct {
	States <-chan string
	Cancel func()
}

// StateChanged reports every change of the interface state property.
func (i *Interface) StateChanged() (*StateChangedClient, error) {
	sub, err := i.subscribe("PropertiesChanged")
	if err != nil {
		return nil, err
	}

	stateChan := make(chan string, 8)

	go func() {
		defer close(stateChan)

		for {
			signal, ok := sub.next()
			if !ok {
				return
			}

			props, ok := signal.Body[0].(map[string]dbus.Variant)
			if !ok {
				continue
			}

			state, ok := stateFromProperties(props)
			if !ok {
				continue
			}

			select {
			case stateChan <- state:
			case <-sub.done:
				return
			}
		}
	}()

	return &StateChangedClient{
		States: stateChan,
		Cancel: sub.cancel,
	}, nil
}

func stateFromProperties(props map[string]dbus.Variant) (string, bool) {
	val, ok := props["State"]
	if !ok {
		return "", false
	}

	state, ok := val.Value().(string)

	return state, ok
}

func (i *Interface) State() (string, error) {
	v, err := i.obj.GetProperty(interfaceIface + ".State")
	if err != nil {
		return "", errors.Errorf("could not get state: %v", err)
	}

	state, ok := v.Value().(string)
	if !ok {
		return "", errors.Errorf("could not convert state: %v", v)
	}

	return state, nil
}

func (i *Interface) BSSs() ([]*BSS, error) {
	v, err := i.obj.GetProperty(interfaceIface + ".BSSs")
	if err != nil {
		return nil, errors.Errorf("could not get bsss: %v", err)
	}

	objectPaths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, errors.Errorf("could not convert result: %v", v)
	}

	var bsss []*BSS

	for _, objectPath := range objectPaths {
		bsss = append(bsss, &BSS{
			obj: i.wpa.conn.Object(serviceName, objectPath),
		})
	}

	return bsss, nil
}

func (i *Interface) AddNetwork(args NetworkArgs) (*Network, error) {
	call := i.obj.Call(interfaceIface+".AddNetwork", 0, map[string]interface{}(args))
	if call.Err != nil {
		return nil, errors.Errorf("could not add network: %v", call.Err)
	}

	var objPath dbus.ObjectPath
	err := call.Store(&objPath)
	if err != nil {
		return nil, errors.Errorf("could not store value: %v", err)
	}

	return &Network{
		wpa: i.wpa,
		obj: i.wpa.conn.Object(serviceName, objPath),
	}, nil
}

func (i *Interface) SelectNetwork(net *Network) error {
	call := i.obj.Call(interfaceIface+".SelectNetwork", 0, net.obj.Path())
	if call.Err != nil {
		return errors.Errorf("could not select network: %v", call.Err)
	}

	return nil
}

func (i *Interface) RemoveNetwork(net *Network) error {
	call := i.obj.Call(interfaceIface+".RemoveNetwork", 0, net.obj.Path())
	if call.Err != nil {
		return errors.Errorf("could not remove network: %v", call.Err)
	}

	return nil
}

func (i *Interface) RemoveAllNetworks() error {
	call := i.obj.Call(interfaceIface+".RemoveAllNetworks", 0)
	if call.Err != nil {
		return errors.Errorf("could not remove all networks: %v", call.Err)
	}

	return nil
}

func (i *Interface) Disconnect() error {
	call := i.obj.Call(interfaceIface+".Disconnect", 0)
	if call.Err != nil {
		return errors.Errorf("could not disconnect: %v", call.Err)
	}

	return nil
}
