package radio

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/event"
)

var (
	// ErrUnsupportedAuthMode is returned when a driver cannot join networks
	// protected by the requested scheme
	ErrUnsupportedAuthMode = errors.New("auth mode not supported by driver")

	// ErrUnsupportedMode is returned for radio modes other than station
	ErrUnsupportedMode = errors.New("radio mode not supported by driver")

	// ErrNotInitialized is returned when a driver is used before Init
	ErrNotInitialized = errors.New("driver not initialized")
)

type Mode int

const (
	ModeStation Mode = iota
	ModeAccessPoint
)

func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "STA"
	case ModeAccessPoint:
		return "AP"
	default:
		return "INVALID MODE"
	}
}

// Pmf configures protected management frames.
type Pmf struct {
	Capable  bool
	Required bool
}

// Config is the station configuration applied before starting the driver.
type Config struct {
	Ssid      string
	Password  string
	Threshold AuthMode
	Pmf       Pmf
}

// Driver owns the physical WiFi link. It reports state changes
// asynchronously through the bus it was initialized with:
//
//	Start       -> event.StaStart
//	association -> event.StaConnected, later event.StaGotIP
//	failure     -> event.StaDisconnected
type Driver interface {
	// Init binds the driver to the bus. Calling it again is a no-op.
	Init(bus *event.Bus) error
	SetMode(mode Mode) error
	SetConfig(config *Config) error
	// Start (re)starts the station and always posts event.StaStart.
	Start() error
	// Connect issues a single association attempt.
	Connect() error
	Stop() error
}

// AccessPoint is a network seen during a scan.
type AccessPoint struct {
	Ssid  string `json:"ssid"`
	Bssid string `json:"bssid"`
}

// Scanner is implemented by drivers able to list nearby networks.
type Scanner interface {
	Scan(ctx context.Context) ([]*AccessPoint, error)
}
