package radio

import (
	"context"
	"net"
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/event"
)

// check MockDriver compliance to its interfaces during compile time
var _ Driver = (*MockDriver)(nil)
var _ Scanner = (*MockDriver)(nil)

// Step is the scripted reaction of the mock radio to one connect command.
type Step byte

const (
	// StepDisconnect answers with event.StaDisconnected
	StepDisconnect Step = 'd'
	// StepGotIP answers with event.StaConnected followed by event.StaGotIP
	StepGotIP Step = '+'
	// StepSilent answers with nothing at all
	StepSilent Step = '.'
)

// ParseScript turns a string like "dd+" into steps.
func ParseScript(s string) ([]Step, error) {
	steps := make([]Step, 0, len(s))

	for i, c := range []byte(s) {
		switch Step(c) {
		case StepDisconnect, StepGotIP, StepSilent:
			steps = append(steps, Step(c))
		default:
			return nil, errors.Errorf("invalid step %q at position %d", c, i)
		}
	}

	return steps, nil
}

type MockDriverConfig struct {
	// Script of reactions to consecutive connect commands
	Script string
	// Fallback is used once the script is exhausted, defaults to StepDisconnect
	Fallback Step
	// Networks returned by Scan
	Networks []string
	// InitErr is returned by Init when set
	InitErr error
	Logger  Logger
}

// MockDriver simulates a radio. It is used by tests and for running the
// daemon on machines without WiFi hardware.
type MockDriver struct {
	log      Logger
	mtx      sync.Mutex
	bus      *event.Bus
	initErr  error
	script   []Step
	pos      int
	fallback Step
	networks []string
	mode     Mode
	config   *Config
	started  bool
	starts   int
	connects int
}

func NewMockDriver(config *MockDriverConfig) (*MockDriver, error) {
	script, err := ParseScript(config.Script)
	if err != nil {
		return nil, errors.Errorf("could not parse script: %v", err)
	}

	driver := &MockDriver{
		script:   script,
		fallback: config.Fallback,
		networks: config.Networks,
		initErr:  config.InitErr,
	}

	if driver.fallback == 0 {
		driver.fallback = StepDisconnect
	}

	if config.Logger != nil {
		driver.log = config.Logger
	} else {
		driver.log = noopLogger{}
	}

	return driver, nil
}

func (m *MockDriver) Init(bus *event.Bus) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.initErr != nil {
		return m.initErr
	}

	m.bus = bus

	return nil
}

func (m *MockDriver) SetMode(mode Mode) error {
	if mode != ModeStation {
		return ErrUnsupportedMode
	}

	m.mtx.Lock()
	m.mode = mode
	m.mtx.Unlock()

	return nil
}

func (m *MockDriver) SetConfig(config *Config) error {
	if !config.Threshold.Valid() {
		return ErrUnsupportedAuthMode
	}

	c := *config

	m.mtx.Lock()
	m.config = &c
	m.mtx.Unlock()

	return nil
}

func (m *MockDriver) Start() error {
	m.mtx.Lock()
	bus := m.bus
	if bus == nil {
		m.mtx.Unlock()
		return ErrNotInitialized
	}
	m.started = true
	m.starts++
	m.mtx.Unlock()

	m.log.Debugf("Mock radio started")

	return bus.Post(context.Background(), event.WifiEvent, event.StaStart, nil)
}

func (m *MockDriver) Connect() error {
	m.mtx.Lock()
	bus := m.bus
	if bus == nil || !m.started {
		m.mtx.Unlock()
		return ErrNotInitialized
	}

	step := m.fallback
	if m.pos < len(m.script) {
		step = m.script[m.pos]
		m.pos++
	}
	m.connects++

	var ssid string
	if m.config != nil {
		ssid = m.config.Ssid
	}
	m.mtx.Unlock()

	m.log.Debugf("Mock radio answering connect with %q", step)

	ctx := context.Background()

	switch step {
	case StepDisconnect:
		return bus.Post(ctx, event.WifiEvent, event.StaDisconnected, &event.Disconnected{
			Ssid:   ssid,
			Reason: "NO_AP_FOUND",
		})
	case StepGotIP:
		err := bus.Post(ctx, event.WifiEvent, event.StaConnected, nil)
		if err != nil {
			return err
		}

		return bus.Post(ctx, event.IPEvent, event.StaGotIP, &event.GotIP{
			Interface: "mock0",
			IP:        net.IPv4(192, 168, 4, 2),
			Mask:      net.CIDRMask(24, 32),
			Gateway:   net.IPv4(192, 168, 4, 1),
		})
	}

	return nil
}

func (m *MockDriver) Stop() error {
	m.mtx.Lock()
	bus := m.bus
	wasStarted := m.started
	m.started = false
	m.mtx.Unlock()

	if bus == nil || !wasStarted {
		return nil
	}

	err := bus.Post(context.Background(), event.WifiEvent, event.StaStop, nil)
	if err != nil && err != event.ErrBusStopped {
		return err
	}

	return nil
}

func (m *MockDriver) Scan(ctx context.Context) ([]*AccessPoint, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	aps := []*AccessPoint{}
	for i, ssid := range m.networks {
		aps = append(aps, &AccessPoint{
			Ssid:  ssid,
			Bssid: net.HardwareAddr{0x02, 0, 0, 0, 0, byte(i)}.String(),
		})
	}

	return aps, nil
}

// SetScript replaces the remaining script.
func (m *MockDriver) SetScript(script string) error {
	steps, err := ParseScript(script)
	if err != nil {
		return err
	}

	m.mtx.Lock()
	m.script = steps
	m.pos = 0
	m.mtx.Unlock()

	return nil
}

// Connects returns the number of connect commands received so far.
func (m *MockDriver) Connects() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.connects
}

// Starts returns how often the station was started.
func (m *MockDriver) Starts() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.starts
}

// Config returns the last applied configuration.
func (m *MockDriver) Config() *Config {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.config
}
