package station

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/event"
	"github.com/the-lightning-land/stationd/radio"
)

// DefaultMaxRetries is the number of reconnects after the first attempt
// before giving up.
const DefaultMaxRetries = 10

// NoRetries gives up on the first disconnect.
const NoRetries = -1

// ErrTimeout is returned when no outcome arrived within Config.Timeout
var ErrTimeout = errors.New("timed out waiting for connection outcome")

type Outcome int

const (
	Failure Outcome = iota
	Success
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	default:
		return "INVALID OUTCOME"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "SUCCESS":
		*o = Success
	case "FAILURE":
		*o = Failure
	default:
		return errors.Errorf("unknown outcome %q", text)
	}

	return nil
}

type Config struct {
	Bus    *event.Bus
	Driver radio.Driver
	// MaxRetries of zero selects DefaultMaxRetries, a negative value
	// such as NoRetries disables reconnects.
	MaxRetries int
	// Timeout bounds the wait for an outcome. Zero waits until either
	// outcome is signalled.
	Timeout time.Duration
	Logger  Logger
}

// Attempt summarizes the most recent connection attempt.
type Attempt struct {
	Ssid        string
	AuthMode    radio.AuthMode
	Outcome     Outcome
	Retries     int
	Connects    int
	Disconnects int
	Reason      string
	IP          net.IP
	Started     time.Time
	Finished    time.Time
}

// Coordinator connects the radio to an access point and waits for the
// result. Attempts are serialized.
type Coordinator struct {
	log        Logger
	bus        *event.Bus
	driver     radio.Driver
	maxRetries int
	timeout    time.Duration

	attemptMtx sync.Mutex

	mtx  sync.Mutex
	last *Attempt
}

func New(config *Config) *Coordinator {
	coordinator := &Coordinator{
		bus:        config.Bus,
		driver:     config.Driver,
		maxRetries: config.MaxRetries,
		timeout:    config.Timeout,
	}

	switch {
	case coordinator.maxRetries == 0:
		coordinator.maxRetries = DefaultMaxRetries
	case coordinator.maxRetries < 0:
		coordinator.maxRetries = 0
	}

	if config.Logger != nil {
		coordinator.log = config.Logger
	} else {
		coordinator.log = noopLogger{}
	}

	return coordinator
}

// Connect joins the access point ssid and blocks until the connection
// succeeded or the retry budget is spent. Errors are returned for failures
// of the bus or the driver, always together with Failure.
func (c *Coordinator) Connect(ctx context.Context, ssid string, password string, authMode radio.AuthMode) (Outcome, error) {
	attempt, err := c.ConnectAttempt(ctx, ssid, password, authMode)
	if attempt == nil {
		return Failure, err
	}

	return attempt.Outcome, err
}

// ConnectAttempt is Connect returning the summary of its own attempt. The
// attempt is nil only if the arguments were rejected before starting.
func (c *Coordinator) ConnectAttempt(ctx context.Context, ssid string, password string, authMode radio.AuthMode) (*Attempt, error) {
	c.attemptMtx.Lock()
	defer c.attemptMtx.Unlock()

	if !authMode.Valid() {
		return nil, errors.Errorf("invalid auth mode %d", int(authMode))
	}

	attempt := &Attempt{
		Ssid:     ssid,
		AuthMode: authMode,
		Outcome:  Failure,
		Started:  time.Now(),
	}

	outcome, err := c.connect(ctx, attempt, password)

	attempt.Outcome = outcome
	attempt.Finished = time.Now()
	if err != nil && attempt.Reason == "" {
		attempt.Reason = err.Error()
	}

	c.mtx.Lock()
	c.last = attempt
	c.mtx.Unlock()

	result := *attempt

	return &result, err
}

func (c *Coordinator) connect(ctx context.Context, attempt *Attempt, password string) (Outcome, error) {
	err := c.bus.Start()
	if err != nil {
		return Failure, errors.Errorf("could not start event bus: %v", err)
	}

	err = c.driver.Init(c.bus)
	if err != nil {
		return Failure, errors.Errorf("could not initialize radio: %v", err)
	}

	s := newSession(c.driver, c.maxRetries, c.log)

	wifiReg, err := c.bus.Register(event.WifiEvent, event.AnyID, s.handleWifiEvent)
	if err != nil {
		return Failure, errors.Errorf("could not register wifi event handler: %v", err)
	}

	ipReg, err := c.bus.Register(event.IPEvent, event.StaGotIP, s.handleIPEvent)
	if err != nil {
		c.unregister(wifiReg)
		return Failure, errors.Errorf("could not register ip event handler: %v", err)
	}

	outcome, err := c.start(ctx, s, attempt, password)

	c.unregister(ipReg)
	c.unregister(wifiReg)

	retries, connects, disconnects, gotIP, lastDisconn := s.stats()
	attempt.Retries = retries
	attempt.Connects = connects
	attempt.Disconnects = disconnects
	if gotIP != nil {
		attempt.IP = gotIP.IP
	}
	if outcome == Failure && lastDisconn != nil {
		attempt.Reason = lastDisconn.Reason
	}

	return outcome, err
}

func (c *Coordinator) start(ctx context.Context, s *session, attempt *Attempt, password string) (Outcome, error) {
	err := c.driver.SetMode(radio.ModeStation)
	if err != nil {
		return Failure, errors.Errorf("could not set station mode: %v", err)
	}

	err = c.driver.SetConfig(&radio.Config{
		Ssid:      attempt.Ssid,
		Password:  password,
		Threshold: attempt.AuthMode,
		Pmf: radio.Pmf{
			Capable:  true,
			Required: false,
		},
	})
	if err != nil {
		return Failure, errors.Errorf("could not configure station: %v", err)
	}

	err = c.driver.Start()
	if err != nil {
		return Failure, errors.Errorf("could not start station: %v", err)
	}

	c.log.Infof("STA initialization complete!")

	outcome, err := c.await(ctx, s)
	if err != nil {
		return outcome, err
	}

	switch outcome {
	case Success:
		c.log.Infof("Connected to access point %v!", attempt.Ssid)
	default:
		c.log.Infof("Failed to connect to access point %v...", attempt.Ssid)
	}

	return outcome, nil
}

func (c *Coordinator) await(ctx context.Context, s *session) (Outcome, error) {
	var timeout <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case outcome := <-s.outcome:
		return outcome, nil
	case <-timeout:
		return Failure, ErrTimeout
	case <-ctx.Done():
		return Failure, ctx.Err()
	}
}

func (c *Coordinator) unregister(reg *event.Registration) {
	err := c.bus.Unregister(reg)
	if err != nil {
		c.log.Warnf("Could not unregister handler %v: %v", reg.Id, err)
	}
}

// LastAttempt returns a copy of the most recent attempt or nil.
func (c *Coordinator) LastAttempt() *Attempt {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.last == nil {
		return nil
	}

	attempt := *c.last

	return &attempt
}
