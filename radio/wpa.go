//go:build !baremetal

package radio

import (
	"context"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/event"
	"github.com/the-lightning-land/stationd/radio/wpa"
)

// check WpaDriver compliance to its interfaces during compile time
var _ Driver = (*WpaDriver)(nil)
var _ Scanner = (*WpaDriver)(nil)

const defaultAssocTimeout = 15 * time.Second

type WpaDriverConfig struct {
	Interface string
	// AssocTimeout bounds a single association attempt. wpa_supplicant keeps
	// scanning silently when the network is not around, so an attempt that
	// does not complete in time is reported as a disconnect.
	AssocTimeout time.Duration
	Logger       Logger
}

// WpaDriver drives a station through wpa_supplicant.
type WpaDriver struct {
	log          Logger
	ifname       string
	assocTimeout time.Duration
	wpa          *wpa.Wpa
	waitAddr     func(ctx context.Context, ifname string) (*event.GotIP, error)

	mtx      sync.Mutex
	bus      *event.Bus
	iface    *wpa.Interface
	config   *Config
	args     wpa.NetworkArgs
	network  *wpa.Network
	states   *wpa.StateChangedClient
	attempts chan struct{}
	cancel   context.CancelFunc
	watching sync.WaitGroup
}

func NewWpaDriver(config *WpaDriverConfig) *WpaDriver {
	driver := &WpaDriver{
		ifname:       config.Interface,
		assocTimeout: config.AssocTimeout,
		wpa:          wpa.New(),
		waitAddr:     waitForAddr,
	}

	if driver.assocTimeout <= 0 {
		driver.assocTimeout = defaultAssocTimeout
	}

	if config.Logger != nil {
		driver.log = config.Logger
	} else {
		driver.log = noopLogger{}
	}

	return driver
}

func (d *WpaDriver) Init(bus *event.Bus) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.bus != nil {
		return nil
	}

	err := d.wpa.Start()
	if err != nil {
		return errors.Errorf("could not start wpa: %v", err)
	}

	iface, err := d.wpa.GetInterface(d.ifname)
	if err != nil {
		_ = d.wpa.Stop()
		return errors.Errorf("could not find interface %v: %v", d.ifname, err)
	}

	d.iface = iface
	d.bus = bus

	return nil
}

func (d *WpaDriver) SetMode(mode Mode) error {
	if mode != ModeStation {
		return ErrUnsupportedMode
	}

	return nil
}

func (d *WpaDriver) SetConfig(config *Config) error {
	args, err := networkArgs(config)
	if err != nil {
		return err
	}

	c := *config

	d.mtx.Lock()
	d.config = &c
	d.args = args
	d.mtx.Unlock()

	return nil
}

func (d *WpaDriver) Start() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.bus == nil {
		return ErrNotInitialized
	}

	if d.args == nil {
		return errors.New("no station config set")
	}

	d.stopStation()

	err := d.iface.RemoveAllNetworks()
	if err != nil {
		return errors.Errorf("could not clear networks: %v", err)
	}

	network, err := d.iface.AddNetwork(d.args)
	if err != nil {
		return errors.Errorf("could not add network %v: %v", d.config.Ssid, err)
	}

	states, err := d.iface.StateChanged()
	if err != nil {
		_ = d.iface.RemoveNetwork(network)
		return errors.Errorf("could not listen for state changes: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d.network = network
	d.states = states
	d.attempts = make(chan struct{}, 1)
	d.cancel = cancel

	d.watching.Add(1)
	go d.watch(ctx, d.bus, d.iface.Disconnect, states.States, d.attempts, d.config.Ssid)

	d.log.Infof("Added network %v on %v", d.config.Ssid, d.ifname)

	return d.bus.Post(context.Background(), event.WifiEvent, event.StaStart, nil)
}

func (d *WpaDriver) Connect() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.network == nil {
		return ErrNotInitialized
	}

	select {
	case d.attempts <- struct{}{}:
	default:
	}

	err := d.iface.SelectNetwork(d.network)
	if err != nil {
		return errors.Errorf("could not select network: %v", err)
	}

	return nil
}

func (d *WpaDriver) Stop() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.bus == nil {
		return nil
	}

	wasStarted := d.network != nil
	d.stopStation()

	if wasStarted {
		err := d.bus.Post(context.Background(), event.WifiEvent, event.StaStop, nil)
		if err != nil && err != event.ErrBusStopped {
			d.log.Warnf("Could not post station stop: %v", err)
		}
	}

	err := d.wpa.Stop()
	if err != nil {
		return errors.Errorf("could not stop wpa: %v", err)
	}

	d.bus = nil
	d.iface = nil

	return nil
}

// Release detaches from wpa_supplicant and leaves the selected network in
// place, so the link survives the process.
func (d *WpaDriver) Release() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.bus == nil {
		return nil
	}

	if d.network != nil {
		d.cancel()
		d.states.Cancel()
		d.watching.Wait()

		d.network = nil
		d.states = nil
		d.cancel = nil
	}

	err := d.wpa.Stop()
	if err != nil {
		return errors.Errorf("could not stop wpa: %v", err)
	}

	d.bus = nil
	d.iface = nil

	return nil
}

// stopStation tears down the current network. The caller holds d.mtx.
func (d *WpaDriver) stopStation() {
	if d.network == nil {
		return
	}

	d.cancel()
	d.states.Cancel()
	d.watching.Wait()

	err := d.iface.Disconnect()
	if err != nil {
		d.log.Warnf("Could not disconnect: %v", err)
	}

	err = d.iface.RemoveNetwork(d.network)
	if err != nil {
		d.log.Warnf("Could not remove network %v: %v", d.network, err)
	}

	d.network = nil
	d.states = nil
	d.cancel = nil
}

// watch translates wpa_supplicant state changes into bus events. abort
// cancels an association that took too long.
func (d *WpaDriver) watch(ctx context.Context, bus *event.Bus, abort func() error, states <-chan string, attempts <-chan struct{}, ssid string) {
	defer d.watching.Done()

	var timer *time.Timer
	var timeout <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timeout = nil
	}

	addrCancel := func() {}
	defer func() {
		addrCancel()
		stopTimer()
	}()

	prev := ""

	for {
		select {
		case <-ctx.Done():
			return

		case <-attempts:
			stopTimer()
			timer = time.NewTimer(d.assocTimeout)
			timeout = timer.C

		case <-timeout:
			timeout = nil

			d.log.Infof("Association with %v timed out in state %v", ssid, prev)

			err := abort()
			if err != nil {
				d.log.Warnf("Could not abort association: %v", err)
			}

			d.post(ctx, bus, event.WifiEvent, event.StaDisconnected, &event.Disconnected{
				Ssid:   ssid,
				Reason: "ASSOC_TIMEOUT",
			})

		case state, ok := <-states:
			if !ok {
				return
			}

			d.log.Debugf("Interface %v changed state from %v to %v", d.ifname, prev, state)

			switch state {
			case wpa.StateCompleted:
				stopTimer()

				if prev != wpa.StateCompleted {
					d.post(ctx, bus, event.WifiEvent, event.StaConnected, nil)

					addrCancel()

					var addrCtx context.Context
					addrCtx, addrCancel = context.WithCancel(ctx)
					d.watching.Add(1)
					go d.awaitAddr(addrCtx, bus)
				}

			case wpa.StateDisconnected, wpa.StateInactive:
				if prev == wpa.StateCompleted {
					addrCancel()
					d.post(ctx, bus, event.IPEvent, event.StaLostIP, nil)
				}

				if prev != "" && prev != wpa.StateDisconnected && prev != wpa.StateInactive && timeout != nil {
					stopTimer()
					d.post(ctx, bus, event.WifiEvent, event.StaDisconnected, &event.Disconnected{
						Ssid:   ssid,
						Reason: prev,
					})
				} else if prev == wpa.StateCompleted {
					d.post(ctx, bus, event.WifiEvent, event.StaDisconnected, &event.Disconnected{
						Ssid:   ssid,
						Reason: "CONNECTION_LOST",
					})
				}
			}

			prev = state
		}
	}
}

func (d *WpaDriver) awaitAddr(ctx context.Context, bus *event.Bus) {
	defer d.watching.Done()

	gotIP, err := d.waitAddr(ctx, d.ifname)
	if err != nil {
		if ctx.Err() == nil {
			d.log.Errorf("Could not wait for address on %v: %v", d.ifname, err)
		}
		return
	}

	d.post(ctx, bus, event.IPEvent, event.StaGotIP, gotIP)
}

// post must not take d.mtx, stopStation waits for the posting goroutines
// while holding it.
func (d *WpaDriver) post(ctx context.Context, bus *event.Bus, base event.Base, id event.ID, data interface{}) {
	err := bus.Post(ctx, base, id, data)
	if err != nil && ctx.Err() == nil {
		d.log.Warnf("Could not post %v event %v: %v", base, id, err)
	}
}

func (d *WpaDriver) Scan(ctx context.Context) ([]*AccessPoint, error) {
	d.mtx.Lock()
	iface := d.iface
	d.mtx.Unlock()

	if iface == nil {
		return nil, ErrNotInitialized
	}

	done, err := iface.ScanDone()
	if err != nil {
		return nil, errors.Errorf("unable to listen to scan completion: %v", err)
	}
	defer done.Cancel()

	err = iface.Scan()
	if err != nil {
		return nil, errors.Errorf("unable to scan: %v", err)
	}

	select {
	case <-done.ScanDone:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	bsss, err := iface.BSSs()
	if err != nil {
		return nil, errors.Errorf("unable to get BSSs: %v", err)
	}

	aps := []*AccessPoint{}
	for _, bss := range bsss {
		b, err := bss.GetAll()
		if err != nil {
			d.log.Debugf("Skipping %v: %v", bss, err)
			continue
		}

		aps = append(aps, &AccessPoint{
			Ssid:  b.Ssid,
			Bssid: b.Bssid,
		})
	}

	return aps, nil
}

// networkArgs maps a station config onto a wpa_supplicant network block.
// The threshold is the weakest accepted scheme.
func networkArgs(config *Config) (wpa.NetworkArgs, error) {
	if config.Ssid == "" {
		return nil, errors.New("missing ssid")
	}

	args := wpa.NetworkArgs{
		"ssid": config.Ssid,
	}

	pmf := uint32(0)
	if config.Pmf.Required {
		pmf = 2
	} else if config.Pmf.Capable {
		pmf = 1
	}

	switch config.Threshold {
	case AuthOpen:
		args["key_mgmt"] = "NONE"
	case AuthWEP:
		args["key_mgmt"] = "NONE"
		args["wep_key0"] = config.Password
		args["wep_tx_keyidx"] = uint32(0)
	case AuthWpaPsk, AuthWpaWpa2Psk:
		args["key_mgmt"] = "WPA-PSK"
		args["proto"] = "WPA RSN"
		args["psk"] = config.Password
	case AuthWpa2Psk:
		args["key_mgmt"] = "WPA-PSK"
		args["proto"] = "RSN"
		args["psk"] = config.Password
	case AuthWpa2Wpa3Psk:
		args["key_mgmt"] = "WPA-PSK SAE"
		args["proto"] = "RSN"
		args["psk"] = config.Password
		if pmf == 0 {
			pmf = 1
		}
	case AuthWpa3Psk:
		args["key_mgmt"] = "SAE"
		args["proto"] = "RSN"
		args["sae_password"] = config.Password
		pmf = 2
	case AuthOWE:
		args["key_mgmt"] = "OWE"
		args["proto"] = "RSN"
		pmf = 2
	default:
		return nil, ErrUnsupportedAuthMode
	}

	args["ieee80211w"] = pmf

	return args, nil
}
