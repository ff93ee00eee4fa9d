package connectivity

import (
	"context"
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/event"
)

type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Online:
		return "ONLINE"
	default:
		return "INVALID STATE"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Reporter interface {
	CurrentState() State
	WaitForStateChange(context.Context, State) bool
}

// check BusReporter compliance to its interfaces during compile time
var _ Reporter = (*BusReporter)(nil)

type Config struct {
	Bus    *event.Bus
	Logger Logger
}

// BusReporter follows station events to tell whether the station has an
// address. It stays registered until closed.
type BusReporter struct {
	log     Logger
	bus     *event.Bus
	wifiReg *event.Registration
	ipReg   *event.Registration

	mtx     sync.Mutex
	state   State
	changed chan struct{}
}

func NewReporter(config *Config) (*BusReporter, error) {
	if config.Bus == nil {
		return nil, errors.New("no event bus given")
	}

	r := &BusReporter{
		bus:     config.Bus,
		state:   Offline,
		changed: make(chan struct{}),
	}

	if config.Logger != nil {
		r.log = config.Logger
	} else {
		r.log = noopLogger{}
	}

	var err error

	r.wifiReg, err = r.bus.Register(event.WifiEvent, event.AnyID, r.handleWifiEvent)
	if err != nil {
		return nil, errors.Errorf("could not register wifi event handler: %v", err)
	}

	r.ipReg, err = r.bus.Register(event.IPEvent, event.AnyID, r.handleIPEvent)
	if err != nil {
		_ = r.wifiReg.Cancel()
		return nil, errors.Errorf("could not register ip event handler: %v", err)
	}

	return r, nil
}

func (r *BusReporter) handleWifiEvent(ev *event.Event) {
	switch ev.ID {
	case event.StaDisconnected, event.StaStop:
		r.setState(Offline)
	}
}

func (r *BusReporter) handleIPEvent(ev *event.Event) {
	switch ev.ID {
	case event.StaGotIP:
		r.setState(Online)
	case event.StaLostIP:
		r.setState(Offline)
	}
}

func (r *BusReporter) setState(state State) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.state == state {
		return
	}

	r.log.Infof("Station is %v", state)

	r.state = state

	// wake up all waiters
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *BusReporter) CurrentState() State {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return r.state
}

// WaitForStateChange blocks until the state is no longer from. It returns
// false if ctx ended first.
func (r *BusReporter) WaitForStateChange(ctx context.Context, from State) bool {
	for {
		r.mtx.Lock()
		state, changed := r.state, r.changed
		r.mtx.Unlock()

		if state != from {
			return true
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return false
		}
	}
}

func (r *BusReporter) Close() error {
	err := r.bus.Unregister(r.ipReg)
	if err != nil {
		return errors.Errorf("could not unregister ip event handler: %v", err)
	}

	err = r.bus.Unregister(r.wifiReg)
	if err != nil {
		return errors.Errorf("could not unregister wifi event handler: %v", err)
	}

	return nil
}
